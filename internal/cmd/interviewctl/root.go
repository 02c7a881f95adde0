// Package interviewctl defines the operator CLI for the interview lifecycle
// HTTP API.
package interviewctl

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	entrypoint "github.com/louisbranch/mockinterview/internal/platform/cmd"
	"github.com/louisbranch/mockinterview/internal/platform/config"
	"github.com/louisbranch/mockinterview/internal/services/interview/identity"
	"github.com/spf13/cobra"
)

type options struct {
	addr  string
	token string
}

// ctlEnv holds environment defaults for flags.
type ctlEnv struct {
	Addr      string `env:"MOCKINTERVIEW_ADDR"       envDefault:"http://localhost:8090"`
	Token     string `env:"MOCKINTERVIEW_TOKEN"`
	JWTSecret string `env:"MOCKINTERVIEW_JWT_SECRET"`
	JWTIssuer string `env:"MOCKINTERVIEW_JWT_ISSUER" envDefault:"mockinterview"`
}

// NewRootCommand builds the interviewctl command tree writing to out.
func NewRootCommand(out io.Writer) (*cobra.Command, error) {
	var env ctlEnv
	if err := entrypoint.ParseConfig(&env); err != nil {
		return nil, err
	}
	opts := &options{}
	root := &cobra.Command{
		Use:           "interviewctl",
		Short:         "Operate mock interview sessions",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.SetOut(out)
	root.PersistentFlags().StringVar(&opts.addr, "addr", env.Addr, "interview service base URL")
	root.PersistentFlags().StringVar(&opts.token, "token", env.Token, "bearer token")

	root.AddCommand(
		newTokenCommand(env),
		newCreateCommand(opts),
		newSessionCommand(opts, "start", "Start a scheduled session", http.MethodPost, "/start"),
		newSessionCommand(opts, "get", "Show a session", http.MethodGet, ""),
		newSessionCommand(opts, "report", "Show the report of a finished session", http.MethodGet, "/report"),
		newEndCommand(opts),
		newHistoryCommand(opts),
	)
	return root, nil
}

// Execute runs the CLI against os.Args.
func Execute() {
	root, err := NewRootCommand(os.Stdout)
	if err != nil {
		config.Exitf("interviewctl: %v", err)
		return
	}
	if err := root.Execute(); err != nil {
		config.Exitf("interviewctl: %v", err)
	}
}

func newTokenCommand(env ctlEnv) *cobra.Command {
	var (
		secret string
		issuer string
		lang   string
		ttl    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token <user-id>",
		Short: "Issue a development bearer token",
		Args:  cobra.ExactArgs(1),
		RunE:  func(cmd *cobra.Command, args []string) error {
			verifier, err := identity.NewVerifier(identity.Config{Secret: []byte(secret), Issuer: issuer})
			if err != nil {
				return err
			}
			token, err := verifier.Issue(args[0], lang, ttl)
			if err != nil {
				return fmt.Errorf("issue token: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
	cmd.Flags().StringVar(&secret, "secret", env.JWTSecret, "signing secret")
	cmd.Flags().StringVar(&issuer, "issuer", env.JWTIssuer, "token issuer")
	cmd.Flags().StringVar(&lang, "lang", "", "preferred language tag")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}

func newCreateCommand(opts *options) *cobra.Command {
	var req struct {
		Category       string `json:"category"`
		Focus          string `json:"focus,omitempty"`
		Tone           string `json:"tone,omitempty"`
		TargetCompany  string `json:"target_company,omitempty"`
		TargetRole     string `json:"target_role,omitempty"`
		Difficulty     string `json:"difficulty,omitempty"`
		TotalQuestions int    `json:"total_questions"`
		VoiceMode      bool   `json:"voice_mode,omitempty"`
	}
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Schedule a new session",
		RunE:  func(cmd *cobra.Command, _ []string) error {
			data, err := newClient(opts.addr, opts.token).do(cmd.Context(), http.MethodPost, "/v1/sessions", nil, req)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), data)
		},
	}
	cmd.Flags().StringVar(&req.Category, "category", "technical", "question category")
	cmd.Flags().StringVar(&req.Focus, "focus", "", "focus area within the category")
	cmd.Flags().StringVar(&req.Tone, "tone", "", "interviewer tone")
	cmd.Flags().StringVar(&req.TargetCompany, "company", "", "target company")
	cmd.Flags().StringVar(&req.TargetRole, "role", "", "target role")
	cmd.Flags().StringVar(&req.Difficulty, "difficulty", "", "starting difficulty (easy, medium, hard)")
	cmd.Flags().IntVar(&req.TotalQuestions, "questions", 5, "number of questions")
	cmd.Flags().BoolVar(&req.VoiceMode, "voice", false, "answer by voice")
	return cmd
}

func newSessionCommand(opts *options, use, short, method, suffix string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <session-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE:  func(cmd *cobra.Command, args []string) error {
			path := "/v1/sessions/" + url.PathEscape(args[0]) + suffix
			data, err := newClient(opts.addr, opts.token).do(cmd.Context(), method, path, nil, nil)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), data)
		},
	}
}

func newEndCommand(opts *options) *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "end <session-id>",
		Short: "End a session early",
		Args:  cobra.ExactArgs(1),
		RunE:  func(cmd *cobra.Command, args []string) error {
			path := "/v1/sessions/" + url.PathEscape(args[0]) + "/end"
			body := map[string]string{"reason": reason}
			data, err := newClient(opts.addr, opts.token).do(cmd.Context(), http.MethodPost, path, nil, body)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), data)
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "why the session ended")
	return cmd
}

func newHistoryCommand(opts *options) *cobra.Command {
	var (
		pageSize  int
		pageToken string
		filter    string
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List past sessions",
		RunE:  func(cmd *cobra.Command, _ []string) error {
			query := url.Values{}
			if pageSize > 0 {
				query.Set("page_size", strconv.Itoa(pageSize))
			}
			if pageToken != "" {
				query.Set("page_token", pageToken)
			}
			if filter != "" {
				query.Set("filter", filter)
			}
			data, err := newClient(opts.addr, opts.token).do(cmd.Context(), http.MethodGet, "/v1/sessions", query, nil)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), data)
		},
	}
	cmd.Flags().IntVar(&pageSize, "page-size", 0, "sessions per page")
	cmd.Flags().StringVar(&pageToken, "page-token", "", "token from a previous page")
	cmd.Flags().StringVar(&filter, "filter", "", `filter expression, e.g. category = "technical"`)
	return cmd
}

func printJSON(out io.Writer, data json.RawMessage) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, data, "", "  "); err != nil {
		_, err = out.Write(data)
		return err
	}
	buf.WriteByte('\n')
	_, err := buf.WriteTo(out)
	return err
}
