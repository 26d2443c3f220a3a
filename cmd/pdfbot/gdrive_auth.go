package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/oauth2"

	"pdfbot/internal/adapters/storage/gdrive"
	"pdfbot/internal/config"
	"pdfbot/internal/pkg/errors"
)

const authTimeout = 3 * time.Minute

// gdriveAuthCmd walks through the OAuth consent screen once and prints the
// refresh token the gdrive storage plugin needs.
func gdriveAuthCmd() *cobra.Command {
	var clientID, clientSecret string
	cmd := &cobra.Command{
		Use:   "gdrive-auth",
		Short: "Obtain a Google Drive refresh token for the gdrive storage plugin",
		// runs before a storage layout or config exists
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			if clientID == "" {
				clientID = strings.TrimSpace(config.Env("GDRIVE_CLIENT_ID", ""))
			}
			if clientSecret == "" {
				clientSecret = strings.TrimSpace(config.Env("GDRIVE_CLIENT_SECRET", ""))
			}
			if clientID == "" || clientSecret == "" {
				return errors.Configuration("client id and secret are required (--client-id/--client-secret or GDRIVE_CLIENT_ID/GDRIVE_CLIENT_SECRET)")
			}
			return runGDriveAuth(cmd, clientID, clientSecret)
		},
	}
	cmd.Flags().StringVar(&clientID, "client-id", "", "OAuth client id")
	cmd.Flags().StringVar(&clientSecret, "client-secret", "", "OAuth client secret")
	return cmd
}

func runGDriveAuth(cmd *cobra.Command, clientID, clientSecret string) error {
	out := cmd.OutOrStdout()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return errors.Wrap(err, "gdrive.auth", "listen for callback")
	}
	defer ln.Close()

	redirectURL := fmt.Sprintf("http://127.0.0.1:%d/callback", ln.Addr().(*net.TCPAddr).Port)
	conf := gdrive.OAuthConfig(clientID, clientSecret, redirectURL)
	state := randomState()

	codeCh := make(chan string, 1)
	errCh := make(chan error, 1)

	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("state") != state {
			http.Error(w, "invalid state", http.StatusBadRequest)
			errCh <- errors.Validation("invalid state")
			return
		}
		if e := q.Get("error"); e != "" {
			http.Error(w, "auth error: "+e, http.StatusBadRequest)
			errCh <- errors.Newf(errors.CodeUnauthorized, "auth error: %s", e)
			return
		}
		code := q.Get("code")
		if code == "" {
			http.Error(w, "missing code", http.StatusBadRequest)
			errCh <- errors.Validation("missing code")
			return
		}
		fmt.Fprintln(w, "OK. You can close this window and return to the terminal.")
		codeCh <- code
	})

	srv := &http.Server{
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() { _ = srv.Serve(ln) }()
	defer srv.Close()

	// offline access is what yields a refresh token
	authURL := conf.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.SetAuthURLParam("prompt", "consent"))
	fmt.Fprintf(out, "\nOpen this URL in your browser:\n\n%s\n\nWaiting for authorization on %s\n", authURL, redirectURL)

	ctx, cancel := context.WithTimeout(cmd.Context(), authTimeout)
	defer cancel()

	var code string
	select {
	case code = <-codeCh:
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return errors.Configuration("timed out waiting for authorization")
	}

	tok, err := conf.Exchange(cmd.Context(), code)
	if err != nil {
		return errors.WrapWithCode(err, errors.CodeConfiguration, "gdrive.auth", "exchange code")
	}

	if strings.TrimSpace(tok.RefreshToken) == "" {
		fmt.Fprintln(out, "\nNo refresh token was returned.")
		fmt.Fprintln(out, "Revoke the app's previous access at https://myaccount.google.com/permissions and run this again.")
		return nil
	}
	fmt.Fprintf(out, "\nGDRIVE_REFRESH_TOKEN=%s\n", tok.RefreshToken)
	return nil
}

func randomState() string {
	b := make([]byte, 18)
	_, _ = rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}
