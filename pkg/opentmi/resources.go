package opentmi

// Execution describes how a single test execution went.
type Execution struct {
	Verdict  string  `json:"verdict,omitempty"`
	Note     string  `json:"note,omitempty"`
	Duration float64 `json:"duration,omitempty"`
}

// Result is a stored test result document.
type Result struct {
	ID         string     `json:"_id,omitempty"`
	TestcaseID string     `json:"tcid,omitempty"`
	Campaign   string     `json:"campaign,omitempty"`
	Job        string     `json:"job,omitempty"`
	Execution  *Execution `json:"exec,omitempty"`
}

// Build is a stored device-under-test build document.
type Build struct {
	ID       string `json:"_id,omitempty"`
	Name     string `json:"name,omitempty"`
	Type     string `json:"type,omitempty"`
	CommitID string `json:"commitId,omitempty"`
	Branch   string `json:"branch,omitempty"`
}

// Event is a stored event document.
type Event struct {
	ID       string `json:"_id,omitempty"`
	Priority string `json:"priority,omitempty"`
	Facility string `json:"facility,omitempty"`
	Message  string `json:"msg,omitempty"`
}

// Testcase is a stored test case metadata document.
type Testcase struct {
	ID      string `json:"_id,omitempty"`
	TcID    string `json:"tcid,omitempty"`
	Name    string `json:"name,omitempty"`
	Purpose string `json:"purpose,omitempty"`
	Status  string `json:"status,omitempty"`
}

// Campaign is a stored campaign document.
type Campaign struct {
	ID   string `json:"_id,omitempty"`
	Name string `json:"name,omitempty"`
}

// Resource is a stored resource document (device, room, equipment).
type Resource struct {
	ID   string `json:"_id,omitempty"`
	Name string `json:"name,omitempty"`
	Type string `json:"type,omitempty"`
}
