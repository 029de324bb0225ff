// Package app is the single entry point used by the transport layers.
//
// Service composes the profile, session, proxy and job services behind the
// operations exposed over HTTP: launching and closing sessions, probing
// proxies, validating and running workflows, and managing the records they
// depend on.
//
// Example Usage:
//
//	svc := app.New(app.Deps{...}, logger)
//	view, err := svc.LaunchSession(ctx, 7, nil)
//	if err != nil {
//	    return err
//	}
//	urls, _ := svc.GetOpenPageURLs(ctx, view.SessionID)
package app
