package gantry

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	"github.com/opnlabs/gantry/pkg/artifacts"
	"github.com/opnlabs/gantry/pkg/config"
	"github.com/opnlabs/gantry/pkg/models"
	"github.com/opnlabs/gantry/pkg/report"
	"github.com/opnlabs/gantry/pkg/runner"
	"github.com/opnlabs/gantry/pkg/scm"
	"github.com/opnlabs/gantry/pkg/trigger"
	"github.com/spf13/cobra"
)

var (
	pipelineFilePath     string
	eventKind            string
	targetBranch         string
	srcDir               string
	artifactsDir         string
	useDocker            bool
	mountDockerSocket    bool
	maxParallel          int
	username             string
	password             string
	envVars              []string
	environmentVariables []models.Variable = make([]models.Variable, 0)
)

var rootCmd = &cobra.Command{
	Use:   "gantry",
	Short: "Gantry is a minimal CI pipeline runner",
	Long: `Gantry runs the jobs defined in a pipeline file ( default gantry.yml )
when an incoming event matches one of its triggers. Jobs are independent and run
concurrently, each inside a fresh isolated environment, and their results are
aggregated into a single pipeline verdict.`,

	Run: func(cmd *cobra.Command, args []string) {

		if len(envVars) > 0 {
			for _, v := range envVars {
				variables := strings.SplitN(v, "=", 2)
				if len(variables) != 2 {
					log.Fatal("variables should be defined as KEY=VALUE", "got", v)
				}

				m := make(map[string]string)
				m[variables[0]] = variables[1]
				environmentVariables = append(environmentVariables, m)
			}
		}

		run()
	},
}

func init() {
	rootCmd.Flags().StringVarP(&pipelineFilePath, "pipeline-file-path", "f", "gantry.yml", "Path to the pipeline file.")
	rootCmd.Flags().StringVarP(&eventKind, "event-kind", "k", "push", "Kind of the incoming event. push or pull_request")
	rootCmd.Flags().StringVarP(&targetBranch, "branch", "b", "", "Target branch of the incoming event")
	rootCmd.Flags().StringVarP(&srcDir, "src", "s", ".", "Source directory staged into job environments when no checkout is configured")
	rootCmd.Flags().StringVarP(&artifactsDir, "artifacts-dir", "a", ".artifacts", "Directory job artifacts are collected into")
	rootCmd.Flags().BoolVarP(&useDocker, "docker", "d", false, "Run jobs inside docker containers instead of host workspaces")
	rootCmd.Flags().BoolVarP(&mountDockerSocket, "mount-docker-socket", "m", false, "Mount docker socket into job containers. Required to run containers from gantry.")
	rootCmd.Flags().IntVar(&maxParallel, "max-parallel", 0, "Override the configured job parallelism. 0 keeps the configured value")
	rootCmd.Flags().StringVarP(&username, "registry-username", "u", "", "Username for the container registry")
	rootCmd.Flags().StringVarP(&password, "registry-password", "p", "", "Password / Token for the container registry")

	rootCmd.Flags().StringArrayVarP(&envVars, "environment-variable", "e", make([]string, 0), "Environment variables. KEY=VALUE")

	rootCmd.AddCommand(versionCmd)
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

func run() {
	godotenv.Load()

	pipeline, err := config.Load(pipelineFilePath)
	if err != nil {
		log.Fatal("could not load pipeline", "err", err)
	}

	if targetBranch == "" {
		log.Fatal("the target branch of the event is required")
	}
	event := models.Event{Kind: models.EventKind(eventKind), Branch: targetBranch}
	if event.Kind != models.EventPush && event.Kind != models.EventPullRequest {
		log.Fatal("unknown event kind", "kind", eventKind)
	}

	if !trigger.ShouldRun(event, pipeline.Triggers) {
		log.Info("event does not match any trigger, nothing to do", "kind", event.Kind, "branch", event.Branch)
		return
	}

	if len(environmentVariables) > 0 {
		for i := range pipeline.Jobs {
			pipeline.Jobs[i].Variables = append(pipeline.Jobs[i].Variables, environmentVariables...)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Jobs run against one snapshot of the source, either checked out from
	// the configured remote or staged from the local directory.
	var provider scm.Provider = scm.NewLocalProvider(srcDir)
	ref := ""
	if pipeline.Checkout != nil {
		provider = scm.NewGitProvider(pipeline.Checkout.Remote)
		ref = pipeline.Checkout.Ref
		if ref == "" {
			ref = event.Branch
		}
	}

	src, err := provider.Checkout(ctx, ref)
	if err != nil {
		log.Fatal("could not check out source", "err", err)
	}
	defer os.RemoveAll(src)

	manager, err := artifacts.NewFileManager(artifactsDir)
	if err != nil {
		log.Fatal("could not set up artifact store", "err", err)
	}

	var factory runner.EnvFactory = runner.NewLocalEnvFactory(src)
	if useDocker {
		factory = runner.NewDockerEnvFactory(src, runner.DockerEnvOptions{
			ShowImagePull:     true,
			MountDockerSocket: mountDockerSocket,
			Username:          username,
			Password:          password,
		})
	}

	parallel := pipeline.Settings.MaxParallel
	if maxParallel > 0 {
		parallel = maxParallel
	}

	results, err := runner.NewPipelineRunner(pipeline.Jobs, factory, runner.PipelineOptions{
		MaxParallel:     parallel,
		StepTimeout:     time.Duration(pipeline.Settings.StepTimeout),
		PipelineTimeout: time.Duration(pipeline.Settings.PipelineTimeout),
		Stdout:          os.Stdout,
		Stderr:          os.Stderr,
		Artifacts:       manager,
	}).Run(ctx)
	if err != nil {
		log.Fatal("pipeline run failed", "err", err)
	}

	result := report.Aggregate(pipeline.Jobs, results)
	report.Render(os.Stdout, result)

	var sink report.Sink = report.NewFileSink(pipeline.Settings.ReportDir)
	if pipeline.Settings.ReportURL != "" {
		sink = report.NewHTTPSink(pipeline.Settings.ReportURL, nil)
	}

	// Uploading uses a fresh context so a cancelled run still reports.
	if err := sink.Upload(context.Background(), result); err != nil {
		log.Error("could not upload report", "err", err)
		report.ApplyUploadPolicy(&result, err, pipeline.Settings.StrictUpload)
	}

	if result.Status == models.StatusFailed {
		os.Exit(1)
	}
}
