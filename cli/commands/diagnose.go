package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"strings"
	"time"

	"github.com/AshkanYarmoradi/go-tram/cli/config"
	"github.com/AshkanYarmoradi/go-tram/cli/styles"
	"github.com/AshkanYarmoradi/go-tram/cli/ui"
	"github.com/AshkanYarmoradi/go-tram/transport/kafka"
	"github.com/AshkanYarmoradi/go-tram/transport/rabbitmq"
	"github.com/spf13/cobra"
)

// NewDiagnoseCommand creates the diagnose command
func NewDiagnoseCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "diagnose",
		Short: "Run diagnostic checks",
		Long: `Run diagnostic checks on your tram setup.

This command verifies:
  • Configuration file validity
  • Saga repository connectivity
  • Saga instance table existence
  • Transport reachability`,
		Aliases: []string{"diag", "doctor"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil && !errors.Is(err, errNoConfig) {
				return err
			}
			runDiagnostics(cmd.Context(), cmd.OutOrStdout(), cfg, defaultChecks())
			return nil
		},
	}
}

// CheckStatus represents the status of a diagnostic check
type CheckStatus int

const (
	StatusOK CheckStatus = iota
	StatusWarning
	StatusError
)

func (s CheckStatus) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusWarning:
		return "WARNING"
	default:
		return "FAILED"
	}
}

// CheckResult represents the result of a diagnostic check
type CheckResult struct {
	Status         CheckStatus
	Message        string
	Recommendation string
}

func ok(message string) CheckResult {
	return CheckResult{Status: StatusOK, Message: message}
}

func warn(message, recommendation string) CheckResult {
	return CheckResult{Status: StatusWarning, Message: message, Recommendation: recommendation}
}

func fail(message, recommendation string) CheckResult {
	return CheckResult{Status: StatusError, Message: message, Recommendation: recommendation}
}

// DiagnosticCheck is one named check. cfg is nil when no tram.yaml was found.
type DiagnosticCheck struct {
	Name  string
	Check func(ctx context.Context, cfg *config.Config) CheckResult
}

func defaultChecks() []DiagnosticCheck {
	return []DiagnosticCheck{
		{Name: "Go Version", Check: checkGoVersion},
		{Name: "Configuration", Check: checkConfiguration},
		{Name: "Saga Repository", Check: checkRepository},
		{Name: "Saga Table", Check: checkSagaTable},
		{Name: "Transport", Check: checkTransport},
	}
}

// runDiagnostics prints each check and returns true when all passed.
func runDiagnostics(ctx context.Context, out io.Writer, cfg *config.Config, checks []DiagnosticCheck) bool {
	fmt.Fprintln(out, ui.SimpleBanner())
	fmt.Fprintln(out)

	var recommendations []string
	allPassed := true

	for _, check := range checks {
		checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		result := check.Check(checkCtx, cfg)
		cancel()

		var status string
		switch result.Status {
		case StatusOK:
			status = styles.SuccessStyle.Render(result.Status.String())
		case StatusWarning:
			status = styles.WarningStyle.Render(result.Status.String())
		default:
			status = styles.ErrorStyle.Render(result.Status.String())
		}
		fmt.Fprintf(out, "  %s %s... %s\n", styles.IconPending, check.Name, status)
		if result.Message != "" {
			fmt.Fprintf(out, "    %s\n", styles.Muted.Render(result.Message))
		}

		if result.Status != StatusOK {
			allPassed = false
		}
		if result.Recommendation != "" {
			recommendations = append(recommendations, result.Recommendation)
		}
	}

	fmt.Fprintln(out)
	if allPassed {
		fmt.Fprintln(out, styles.FormatSuccess("All checks passed"))
		return true
	}

	fmt.Fprintln(out, styles.FormatWarning("Some checks failed or have warnings"))
	if len(recommendations) > 0 {
		fmt.Fprintln(out, styles.Subtitle.Render("Recommendations:"))
		fmt.Fprint(out, ui.ListItems(recommendations))
	}
	return false
}

func checkGoVersion(context.Context, *config.Config) CheckResult {
	return ok(runtime.Version() + " " + runtime.GOOS + "/" + runtime.GOARCH)
}

func checkConfiguration(_ context.Context, cfg *config.Config) CheckResult {
	if cfg == nil {
		return warn("No "+config.ConfigFileName+" found", "Run 'tram init' to create a configuration file")
	}
	if problems := cfg.Validate(); len(problems) > 0 {
		return fail(fmt.Sprintf("%d validation errors", len(problems)), strings.Join(problems, "; "))
	}
	return ok(fmt.Sprintf("Project: %s, Repository: %s, Transport: %s",
		cfg.Project.Name, cfg.Repository.Driver, cfg.Transport.Kind))
}

func checkRepository(ctx context.Context, cfg *config.Config) CheckResult {
	if cfg == nil {
		return warn("Skipped (no configuration)", "")
	}
	if cfg.Repository.Driver == config.DriverMemory {
		return ok("In-memory repository (no connection needed)")
	}
	if cfg.DatabaseURL() == "" {
		return warn("Database URL is empty", "Set "+cfg.Repository.URL)
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return fail(err.Error(), "Verify the database URL and that PostgreSQL is running")
	}
	defer store.Close()

	if err := store.Ping(ctx); err != nil {
		return fail(err.Error(), "Check database server status")
	}
	return ok("Connected")
}

// tableChecker is implemented by stores that can report on their schema.
type tableChecker interface {
	TableExists(ctx context.Context) (bool, error)
}

func checkSagaTable(ctx context.Context, cfg *config.Config) CheckResult {
	if cfg == nil || cfg.Repository.Driver == config.DriverMemory {
		return ok("Skipped (memory repository or no configuration)")
	}
	if cfg.DatabaseURL() == "" {
		return warn("Skipped (no database URL)", "")
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return fail(err.Error(), "")
	}
	defer store.Close()

	checker, isChecker := store.(tableChecker)
	if !isChecker {
		return ok("Skipped (store cannot report its schema)")
	}
	exists, err := checker.TableExists(ctx)
	if err != nil {
		return fail(err.Error(), "Check database permissions")
	}
	if !exists {
		return warn("Table "+cfg.Repository.Schema+"."+cfg.Repository.Table+" does not exist", "Run 'tram migrate'")
	}
	return ok("Table " + cfg.Repository.Schema + "." + cfg.Repository.Table + " exists")
}

// Transport health checks, replaced in tests.
var (
	pingKafka    = kafka.Ping
	pingRabbitMQ = rabbitmq.Ping
)

func checkTransport(ctx context.Context, cfg *config.Config) CheckResult {
	if cfg == nil {
		return warn("Skipped (no configuration)", "")
	}

	switch cfg.Transport.Kind {
	case "", config.TransportNone:
		return ok("In-process (no broker)")
	case config.TransportKafka:
		if err := pingKafka(ctx, cfg.KafkaBrokers()); err != nil {
			return fail(err.Error(), "Check transport.kafka.brokers")
		}
		return ok("Kafka reachable")
	case config.TransportRabbitMQ:
		if err := pingRabbitMQ(cfg.RabbitMQURL()); err != nil {
			return fail(err.Error(), "Check transport.rabbitmq.url")
		}
		return ok("RabbitMQ reachable")
	case config.TransportSNS:
		return ok("SNS topics under " + cfg.Transport.SNS.TopicPrefix + " (credentials are not checked)")
	case config.TransportWebhook:
		if cfg.WebhookBaseURL() == "" {
			return warn("Webhook base URL is empty", "Set transport.webhook.base_url")
		}
		return ok("Webhooks to " + cfg.WebhookBaseURL())
	default:
		return fail("Unknown transport "+cfg.Transport.Kind, "Run 'tram init' again or fix transport.kind")
	}
}
