package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/craftwork/sessioncore/internal/idstub"
	"github.com/craftwork/sessioncore/pkg/resolve"
)

func whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Resolve the current user",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := buildCore(cmd)
			if err != nil {
				return err
			}
			defer c.close()

			user, err := c.resolver.Resolve(cmd.Context())
			if errors.Is(err, resolve.ErrNoSession) {
				c.reportNavigation()
				fmt.Println("no recoverable session")
				return nil
			}
			if err != nil {
				return err
			}

			fmt.Printf("id=%d role=%s onboarded=%v", user.ID, user.Role, user.OnboardingComplete)
			if user.Name != "" {
				fmt.Printf(" name=%q", user.Name)
			}
			fmt.Println()
			return nil
		},
	}
}

func refreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Exchange ambient credentials for a fresh access token",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := buildCore(cmd)
			if err != nil {
				return err
			}
			defer c.close()

			result, err := c.refresher.Refresh(cmd.Context())
			if err != nil {
				return err
			}
			if result == nil {
				fmt.Println("no session to refresh")
				return nil
			}
			fmt.Printf("token=%s", result.AccessToken)
			if result.ExpiresIn > 0 {
				fmt.Printf(" expires_in=%s", result.ExpiresIn)
			}
			fmt.Println()
			return nil
		},
	}
}

func verifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Probe the provider with the current token",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := buildCore(cmd)
			if err != nil {
				return err
			}
			defer c.close()

			if err := c.client.Verify(cmd.Context()); err != nil {
				c.reportNavigation()
				fmt.Printf("not verified: %v\n", err)
				return nil
			}
			fmt.Println("verified")
			return nil
		},
	}
}

func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the session and clear cached credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := buildCore(cmd)
			if err != nil {
				return err
			}
			defer c.close()

			if err := c.client.Logout(cmd.Context(), c.store); err != nil {
				fmt.Printf("logout call failed (%v); local session cleared\n", err)
				return nil
			}
			fmt.Println("logged out")
			return nil
		},
	}
}

func serveCmd() *cobra.Command {
	var addr string
	var profileMode string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the stub identity provider",
		RunE: func(cmd *cobra.Command, args []string) error {
			fixture := idstub.DefaultFixture()
			fixture.ProfileMode = idstub.ProfileMode(profileMode)

			server := idstub.New(fixture, nil)
			httpServer := &http.Server{Addr: addr, Handler: server.Handler()}

			go func() {
				<-cmd.Context().Done()
				httpServer.Shutdown(context.Background())
			}()

			fmt.Printf("stub identity provider on %s (cookie %s=%s)\n",
				addr, idstub.CookieName, fixture.RefreshCookie)
			err := httpServer.ListenAndServe()
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8788", "listen address")
	cmd.Flags().StringVar(&profileMode, "profile", string(idstub.ProfileOK),
		"freelancer profile behavior: ok, not_found, unauthorized, fail")
	return cmd
}
