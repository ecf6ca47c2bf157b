// Package opentmi provides a high-level client for the OpenTMI test
// management REST API.
//
// The client wraps the wire-level transport with typed operations for
// results, builds, events, test cases, campaigns and resources.
//
// # Usage
//
// Create a client and upload a result:
//
//	client := opentmi.New("localhost", 3000,
//	    opentmi.WithLogger(logger))
//
//	if err := client.Login(ctx, "user@example.com", "secret"); err != nil {
//	    return err
//	}
//
//	result := opentmi.Result{
//	    TestcaseID: "sample-test",
//	    Execution:  opentmi.Execution{Verdict: "pass"},
//	}
//	stored, err := client.PostResult(ctx, result)
//
// # Authentication
//
// Operations that write to the server require a token. Besides Login and
// LoginWithAccessToken, the client picks up credentials from the
// OPENTMI_GITHUB_ACCESS_TOKEN or OPENTMI_USERNAME/OPENTMI_PASSWORD
// environment variables on first use.
package opentmi
