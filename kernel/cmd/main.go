package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/Scusemua/go-utils/config"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
	"github.com/muesli/termenv"
	"github.com/opentracing/opentracing-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/scusemua/livy-notebook/common/consul"
	"github.com/scusemua/livy-notebook/common/livy"
	"github.com/scusemua/livy-notebook/common/livy/command"
	"github.com/scusemua/livy-notebook/common/livy/controller"
	"github.com/scusemua/livy-notebook/common/livy/manager"
	"github.com/scusemua/livy-notebook/common/livy/request"
	"github.com/scusemua/livy-notebook/common/metrics"
	"github.com/scusemua/livy-notebook/common/tracing"
	"github.com/scusemua/livy-notebook/common/utils"
	"github.com/scusemua/livy-notebook/kernel/domain"
)

const (
	ServiceName = "livy-notebook"

	usage = `Usage: kernel [options] <command> [arguments]

Commands:
  create               Create the session of kernel_id.
  run <code>           Run code in the session of kernel_id, creating or re-attaching to it as needed.
  sql <query>          Run a SQL query in the session of kernel_id and print the result as a table.
  complete <code> [n]  Print completion candidates for code at cursor position n (default: end of code).
  list                 List the sessions of proxy_user at the gateway.
  info                 Print the application, URLs, and log tail of the session of kernel_id.
  delete               Delete the session of kernel_id.
  delete-id <id>       Delete the session with the given id.
  cleanup              Delete every session of proxy_user at the gateway.
  queue-get            Print the queue of the session of kernel_id and the available queues.
  queue-set <queue>    Recreate the session of kernel_id on another queue.

Options:`
)

var (
	options      = domain.DefaultKernelOptions()
	globalLogger = config.GetLogger("")
)

func init() {
	lipgloss.SetColorProfile(termenv.ANSI256)
}

// ValidateOptions ensures that the options/configuration is valid and returns the positional arguments.
func ValidateOptions() []string {
	flags, err := config.ValidateOptions(&options)
	if errors.Is(err, config.ErrPrintUsage) {
		fmt.Println(usage)
		flags.PrintDefaults()
		os.Exit(0)
	} else if err != nil {
		log.Fatal(err)
	}

	return flags.Args()
}

// CreateTracer initializes the Jaeger tracer if an agent address is configured.
func CreateTracer() io.Closer {
	if options.JaegerAddr == "" {
		return nil
	}

	globalLogger.Info("Initializing jaeger agent [service name: %v | host: %v]...", ServiceName, options.JaegerAddr)

	tracer, closer, err := tracing.Init(ServiceName, options.JaegerAddr)
	if err != nil {
		log.Fatalf("Got error while initializing jaeger agent: %v", err)
	}

	opentracing.SetGlobalTracer(tracer)
	globalLogger.Info("Jaeger agent initialized")

	return closer
}

// ResolveGatewayUrl replaces the configured gateway URL with the one registered in Consul, if Consul is configured.
func ResolveGatewayUrl() {
	if options.ConsulAddr == "" {
		return
	}

	globalLogger.Info("Initializing consul agent [host: %v]...", options.ConsulAddr)
	consulClient, err := consul.NewClient(options.ConsulAddr)
	if err != nil {
		log.Fatalf("Got error while initializing consul agent: %v", err)
	}

	url, err := consulClient.ResolveServiceURL(options.ConsulServiceName, "http")
	if err != nil {
		log.Fatalf("Could not find the gateway in consul: %v", err)
	}

	globalLogger.Info("Using gateway at %s.", url)
	options.LivyUrl = url
}

func main() {
	args := ValidateOptions()
	if len(args) == 0 {
		fmt.Println(usage)
		os.Exit(2)
	}

	if options.PrettyPrintOptions {
		globalLogger.Info("Starting with the following options:\n%s\n", options.PrettyString(2))
	}

	if options.KernelId == "" {
		options.KernelId = uuid.NewString()
		globalLogger.Info("Generated kernel id %s.", options.KernelId)
	}

	if options.ProxyUser == "" {
		options.ProxyUser = utils.CurrentUser()
	}

	if closer := CreateTracer(); closer != nil {
		defer func() {
			_ = closer.Close()
		}()
	}

	ResolveGatewayUrl()

	registry := prometheus.NewRegistry()
	livyMetrics, err := metrics.NewLivyMetrics(registry)
	if err != nil {
		log.Fatalf("Failed to register metrics: %v", err)
	}

	metricsServer := metrics.NewPrometheusServer(options.PrometheusPort, registry)
	if err = metricsServer.Start(); err != nil {
		log.Fatalf("Failed to start the metrics server: %v", err)
	}
	defer func() {
		if metricsServer.IsRunning() {
			_ = metricsServer.Stop()
		}
	}()

	settings, err := options.ControllerSettings()
	if err != nil {
		log.Fatal(err)
	}

	ctrl := controller.NewController(manager.NewManager(livyMetrics), &options.LivyOptions, settings, controller.NewLogReporter(),
		controller.WithMetrics(livyMetrics), controller.WithCurrentUser(options.ProxyUser))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err = runCommand(ctx, ctrl, args[0], args[1:]); err != nil {
		globalLogger.Error(utils.RedStyle.Render("%s"), err.Error())
		stop()
		os.Exit(1)
	}
}

func runCommand(ctx context.Context, ctrl *controller.Controller, name string, args []string) error {
	language := options.SessionLanguage()

	endpoint, err := options.EndpointFor(language)
	if err != nil {
		return err
	}

	switch name {
	case "create":
		sessionName, err := ctrl.CreateSession(ctx, options.KernelId, language, options.ProxyUser, "")
		if err != nil {
			return errors.New(options.FatalErrorMessage(err))
		}

		fmt.Println(sessionName)
	case "run":
		if len(args) < 1 {
			return errors.New("run requires the code to run")
		}

		return runExecutable(ctx, ctrl, command.NewCommand(args[0]))
	case "sql":
		if len(args) < 1 {
			return errors.New("sql requires a query")
		}

		return runExecutable(ctx, ctrl, command.NewSQLQuery(args[0], options.SamplingDefaults()))
	case "complete":
		if len(args) < 1 {
			return errors.New("complete requires the code to complete")
		}

		cursor := len(args[0])
		if len(args) > 1 {
			if cursor, err = strconv.Atoi(args[1]); err != nil {
				return fmt.Errorf("invalid cursor \"%s\": %w", args[1], err)
			}
		}

		sessionName, err := attach(ctx, ctrl)
		if err != nil {
			return err
		}

		candidates, err := ctrl.Complete(ctx, sessionName, args[0], cursor)
		if err != nil {
			return err
		}

		for _, candidate := range candidates {
			fmt.Println(candidate)
		}
	case "list":
		sessions, err := ctrl.ListRemoteSessions(ctx, endpoint, options.ProxyUser)
		if err != nil {
			return err
		}

		printSessions(os.Stdout, sessions)
	case "info":
		sessionName, err := attach(ctx, ctrl)
		if err != nil {
			return err
		}

		return printInfo(ctx, ctrl, sessionName)
	case "delete":
		return deleteKernelSessions(ctx, ctrl, endpoint)
	case "delete-id":
		if len(args) < 1 {
			return errors.New("delete-id requires a session id")
		}

		id, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid session id \"%s\": %w", args[0], err)
		}

		return ctrl.DeleteById(ctx, endpoint, id)
	case "cleanup":
		return ctrl.CleanUpEndpoint(ctx, endpoint)
	case "queue-get", "queue-set":
		content := map[string]interface{}{request.FieldRequestType: string(request.TypeGetQueue)}
		if name == "queue-set" {
			if len(args) < 1 {
				return errors.New("queue-set requires a queue")
			}

			content = map[string]interface{}{
				request.FieldRequestType: string(request.TypeSetQueue),
				request.FieldYarnQueue:   args[0],
			}
		}

		dispatcher := request.NewDispatcher(ctrl, &options.LivyOptions, &options.LivyOptions, request.Kernel{
			InstanceId: options.KernelId,
			Language:   language,
			ProxyUser:  options.ProxyUser,
		})

		return printReply(os.Stdout, dispatcher.HandleMessage(ctx, content))
	default:
		return fmt.Errorf("unknown command \"%s\"", name)
	}

	return nil
}

// attach re-attaches to (or creates) the session of kernel_id.
func attach(ctx context.Context, ctrl *controller.Controller) (string, error) {
	sessionName, err := ctrl.GetOrCreateSession(ctx, options.KernelId, options.SessionLanguage(), options.ProxyUser)
	if err != nil {
		return "", errors.New(options.FatalErrorMessage(err))
	}

	return sessionName, nil
}

func runExecutable(ctx context.Context, ctrl *controller.Controller, exe livy.Executable) error {
	sessionName, err := attach(ctx, ctrl)
	if err != nil {
		return err
	}

	result, err := ctrl.Run(ctx, exe, sessionName)
	if err != nil {
		return err
	}

	printResult(os.Stdout, result)

	if !result.Success {
		return errors.New("the statement failed")
	}

	return nil
}

// deleteKernelSessions deletes every remote session named after kernel_id.
func deleteKernelSessions(ctx context.Context, ctrl *controller.Controller, endpoint *livy.Endpoint) error {
	sessionName := ctrl.GenerateSessionName(options.KernelId)

	sessions, err := ctrl.ListRemoteSessions(ctx, endpoint, options.ProxyUser)
	if err != nil {
		return err
	}

	deleted := 0
	for _, sess := range sessions {
		if sess.Name() != sessionName {
			continue
		}

		if err = ctrl.DeleteById(ctx, endpoint, sess.Id()); err != nil {
			return err
		}
		deleted++
	}

	if deleted == 0 {
		return &livy.SessionNotFoundError{Name: sessionName}
	}

	return nil
}
