package main

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/oauth2"

	"renderbridge/internal/storage"
)

var gdriveAuthCmd = &cobra.Command{
	Use:   "gdrive-auth",
	Short: "Obtain a Google Drive refresh token for STORAGE_PROVIDER=gdrive",
	Long: `Run the OAuth consent flow for the Drive storage provider.

Reads GDRIVE_CLIENT_ID and GDRIVE_CLIENT_SECRET, starts a callback listener on
a free local port and prints the consent URL. Open it in a browser; the
refresh token is printed once consent is given. Store it as
GDRIVE_REFRESH_TOKEN.
`,
	Args: cobra.NoArgs,
	RunE: runGDriveAuth,
}

var gdriveAuthTimeout time.Duration

func init() {
	rootCmd.AddCommand(gdriveAuthCmd)
	gdriveAuthCmd.Flags().DurationVar(&gdriveAuthTimeout, "timeout", 3*time.Minute, "How long to wait for consent")
}

func runGDriveAuth(cmd *cobra.Command, _ []string) error {
	clientID := strings.TrimSpace(os.Getenv("GDRIVE_CLIENT_ID"))
	clientSecret := strings.TrimSpace(os.Getenv("GDRIVE_CLIENT_SECRET"))
	if clientID == "" || clientSecret == "" {
		return fmt.Errorf("GDRIVE_CLIENT_ID and GDRIVE_CLIENT_SECRET must be set")
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return err
	}
	defer ln.Close()

	redirectURL := fmt.Sprintf("http://127.0.0.1:%d/callback", ln.Addr().(*net.TCPAddr).Port)
	conf := storage.GDriveOAuthConfig(clientID, clientSecret, redirectURL)
	state := randomState()

	codeCh := make(chan string, 1)
	errCh := make(chan error, 1)

	srv := &http.Server{
		Handler:      callbackHandler(state, codeCh, errCh),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() { _ = srv.Serve(ln) }()
	defer srv.Close()

	// Offline access with forced consent so Google returns a refresh token.
	authURL := conf.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.SetAuthURLParam("prompt", "consent"))

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "\nOpen this URL in your browser:\n\n%s\n\nWaiting for the callback on %s\n", authURL, redirectURL)

	ctx := cmd.Context()
	var code string
	select {
	case code = <-codeCh:
	case err := <-errCh:
		return err
	case <-time.After(gdriveAuthTimeout):
		return fmt.Errorf("timed out waiting for authorization")
	case <-ctx.Done():
		return ctx.Err()
	}

	tok, err := conf.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("exchange authorization code: %w", err)
	}
	if strings.TrimSpace(tok.RefreshToken) == "" {
		return fmt.Errorf("no refresh token returned; revoke the app at https://myaccount.google.com/permissions and retry")
	}

	fmt.Fprintf(out, "\nGDRIVE_REFRESH_TOKEN=%s\n", tok.RefreshToken)
	return nil
}

// callbackHandler accepts the first redirect carrying state and reports its
// code or error.
func callbackHandler(state string, codeCh chan<- string, errCh chan<- error) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		var err error
		switch {
		case q.Get("state") != state:
			err = fmt.Errorf("invalid state")
		case q.Get("error") != "":
			err = fmt.Errorf("auth error: %s", q.Get("error"))
		case q.Get("code") == "":
			err = fmt.Errorf("missing code")
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			select {
			case errCh <- err:
			default:
			}
			return
		}

		fmt.Fprintln(w, "Authorized. You can close this window.")
		select {
		case codeCh <- q.Get("code"):
		default:
		}
	})
	return mux
}

func randomState() string {
	b := make([]byte, 18)
	_, _ = rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}
