package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/parktrail/internal/activity"
	"github.com/sells-group/parktrail/pkg/strava"
)

var (
	stravaCode   string
	stravaListen string
)

var stravaCmd = &cobra.Command{
	Use:   "strava",
	Short: "Strava account connection",
}

var stravaAuthCmd = &cobra.Command{
	Use:   "auth",
	Short: "Connect a Strava account",
	Long:  "Prints the Strava authorization URL and waits for the redirect on a local callback, or exchanges a code given with --code. The session is stored in Postgres and refreshed automatically.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := openStore(ctx, "strava")
		if err != nil {
			return err
		}
		defer env.Close()

		client := stravaClient(cfg.Strava)
		sessions := strava.NewSessions(client, activity.NewPostgresSessions(env.Pool))

		code := stravaCode
		if code == "" {
			ln, err := net.Listen("tcp", stravaListen)
			if err != nil {
				return eris.Wrapf(err, "strava auth: listen on %s", stravaListen)
			}
			state := uuid.NewString()
			redirect := "http://" + ln.Addr().String() + "/callback"

			fmt.Fprintf(cmd.OutOrStdout(), "Open this URL to connect Strava:\n\n  %s\n\n", client.AuthorizeURL(redirect, state))
			code, err = awaitCode(ctx, ln, state)
			if err != nil {
				return err
			}
		}

		sess, err := sessions.Connect(ctx, code)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Connected athlete %d. Set strava.athlete_id=%d to import activities.\n", sess.AthleteID, sess.AthleteID)
		return nil
	},
}

// callbackHandler receives the OAuth redirect and sends the code on codes.
// Requests with the wrong state are refused.
func callbackHandler(state string, codes chan<- string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("state") != state {
			http.Error(w, "state mismatch", http.StatusBadRequest)
			return
		}
		if e := q.Get("error"); e != "" {
			http.Error(w, "authorization failed: "+e, http.StatusBadRequest)
			return
		}
		code := q.Get("code")
		if code == "" {
			http.Error(w, "missing code", http.StatusBadRequest)
			return
		}
		select {
		case codes <- code:
			fmt.Fprintln(w, "Strava connected. You can close this window.")
		default:
			http.Error(w, "already connected", http.StatusConflict)
		}
	})
}

// awaitCode serves the callback on ln until a code arrives or ctx ends.
func awaitCode(ctx context.Context, ln net.Listener, state string) (string, error) {
	codes := make(chan string, 1)
	mux := http.NewServeMux()
	mux.Handle("/callback", callbackHandler(state, codes))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	errc := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()
	defer func() {
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutCtx)
	}()

	zap.L().Info("waiting for strava callback", zap.String("addr", ln.Addr().String()))
	select {
	case code := <-codes:
		return code, nil
	case err := <-errc:
		return "", eris.Wrap(err, "strava auth: callback server")
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func init() {
	stravaAuthCmd.Flags().StringVar(&stravaCode, "code", "", "authorization code to exchange (skips the local callback)")
	stravaAuthCmd.Flags().StringVar(&stravaListen, "listen", "localhost:8089", "address for the local OAuth callback")
	stravaCmd.AddCommand(stravaAuthCmd)
	rootCmd.AddCommand(stravaCmd)
}
