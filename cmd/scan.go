package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/socius/internal/agent"
	"github.com/spigell/socius/internal/filtering"
	"github.com/spigell/socius/internal/logger"
)

const (
	PromptHandleAll           = "Handle everyone"
	PromptManual              = "Handle people one by one"
	PromptBack                = "back"
	PromptAppendToExcludeFile = "Append everyone to exclude file"
	PromptFilters             = "Show filters"
)

var errExit = errors.New("exit requested")

var scanCmd = &cobra.Command{
	Use:   "scan <detections.json>",
	Short: "Filter a batch of detected people and handle the rest",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		scan(cmd, args[0])
	},
}

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().StringP("user", "u", "", "user the assistant acts for (default is user-id)")
	scanCmd.Flags().StringP("exclude-file", "e", "", "file with people never to contact. Default is unset.")
	scanCmd.Flags().Duration("contacted-within", 0, "only skip people contacted within this window (default is any time)")
	scanCmd.Flags().BoolP("include-contacted", "f", false, "do not skip people the assistant already reached out to")
	scanCmd.Flags().BoolP("auto-approve", "y", false, "handle everyone without asking first")
	scanCmd.Flags().BoolP("no-prompt", "n", false, "decline permission requests instead of asking")

	viper.BindPFlag("scan.exclude-file", scanCmd.Flags().Lookup("exclude-file"))
}

type scanRun struct {
	agent    *agent.Agent
	comps    *components
	detected *filtering.Detections
	exclude  string
	ask      approver
	logger   *zap.Logger
}

func scan(cmd *cobra.Command, path string) {
	ctx := context.Background()

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	userID, err := requireUserID(config, cmd.Flag("user").Value.String())
	if err != nil {
		logger.Fatal("resolving user", zap.Error(err))
	}

	detected, err := filtering.LoadDetections(path)
	if err != nil {
		logger.Fatal("loading detections", zap.String("path", path), zap.Error(err))
	}

	logger.Info("loaded detections", zap.Int("count", detected.Len()))

	if detected.Len() == 0 {
		logger.Info("exiting", zap.String("reason", "no detections found"))
		return
	}

	c, err := newComponents(ctx, config, true, logger)
	if err != nil {
		logger.Fatal("building components", zap.Error(err))
	}

	steps := filtering.Default()
	if includeContacted, _ := cmd.Flags().GetBool("include-contacted"); includeContacted {
		filtering.DisableByName(steps, "contacted", "disabled by --include-contacted")
	}
	within, _ := cmd.Flags().GetDuration("contacted-within")

	filterCfg := &filtering.Config{
		ExcludeFile:     config.Scan.ExcludeFile,
		ContactedWithin: within,
	}
	deps := filtering.Deps{UserID: userID, Interactions: c.store, Logger: logger}

	detected, err = filtering.Run(ctx, filterCfg, deps, steps, detected)
	if err != nil {
		logger.Fatal("filtering failed", zap.Error(err))
	}

	if detected.Len() == 0 {
		logger.Info("exiting", zap.String("reason", "no detections left after filters"))
		return
	}

	a, err := c.newAgent(ctx, config, userID, logger)
	if err != nil {
		logger.Fatal("starting the agent", zap.Error(err))
	}

	run := &scanRun{
		agent:    a,
		comps:    c,
		detected: detected,
		exclude:  strings.TrimSpace(config.Scan.ExcludeFile),
		ask:      askApproval,
		logger:   logger,
	}
	if noPrompt, _ := cmd.Flags().GetBool("no-prompt"); noPrompt {
		run.ask = nil
	}

	autoApprove, _ := cmd.Flags().GetBool("auto-approve")
	if autoApprove {
		if err := run.handle(ctx, detected.Items); err != nil {
			logger.Fatal("handling detections", zap.Error(err))
		}
		return
	}

	items := []string{PromptHandleAll, PromptNo, PromptManual, PromptFilters}
	if run.exclude != "" {
		items = append(items, PromptAppendToExcludeFile)
	}
	prompt := promptui.Select{Label: "Proceed?", Items: items}

	for run.detected.Len() > 0 {
		logger.Info("current list of detections", zap.Int("count", run.detected.Len()))

		_, action, err := prompt.Run()
		if err != nil {
			logger.Fatal("exiting", zap.Error(err))
		}

		if err := run.action(ctx, action, steps); err != nil {
			if errors.Is(err, errExit) {
				return
			}
			logger.Fatal("exiting", zap.Error(err))
		}
	}

	logger.Info("exiting", zap.String("reason", "everyone handled"))
}

func (r *scanRun) action(ctx context.Context, action string, steps []filtering.Filter) error {
	switch action {
	case PromptHandleAll:
		return r.handle(ctx, r.detected.Items)
	case PromptNo:
		r.logger.Info("exiting", zap.String("reason", "got no from prompt"))
		return errExit
	case PromptManual:
		return r.manual(ctx)
	case PromptFilters:
		printJSON(filtering.Describe(steps))
		return nil
	case PromptAppendToExcludeFile:
		return r.appendToExcludeFile(r.detected, "excluded from scan")
	default:
		return fmt.Errorf("invalid action: %s", action)
	}
}

// handle runs the nearby flow for every item and drops it from the list once done.
func (r *scanRun) handle(ctx context.Context, items []*filtering.Detection) error {
	handled := make([]string, 0, len(items))
	defer func() { r.detected.Exclude(handled) }()

	for _, item := range items {
		outcome, err := handleDetection(ctx, r.agent, r.comps.policy, item.UserID, item.Context, r.ask, r.logger)
		if err != nil {
			return fmt.Errorf("handle %s: %w", item.UserID, err)
		}
		handled = append(handled, item.UserID)

		fields := []zap.Field{
			zap.String("other_user_id", item.UserID),
			zap.String("action", string(outcome.Action)),
		}
		if outcome.Success != nil {
			fields = append(fields, zap.Bool("success", *outcome.Success))
		}
		if outcome.Error != "" {
			fields = append(fields, zap.String("error", outcome.Error))
		}
		r.logger.Info("detection handled", fields...)
	}

	r.logger.Info("handled detections", zap.Int("count", len(handled)))
	return nil
}

func (r *scanRun) manual(ctx context.Context) error {
	for r.detected.Len() > 0 {
		items := make([]string, 0, r.detected.Len()+1)
		for _, d := range r.detected.Items {
			label := d.UserID
			if event := d.Context.EventName(); event != "" {
				label = fmt.Sprintf("%s / %s", d.UserID, event)
			}
			items = append(items, label)
		}

		detectionPrompt := promptui.Select{
			Label: "Choose a person and press ENTER",
			Items: append(items, PromptBack),
		}

		idx, selected, err := detectionPrompt.Run()
		if err != nil {
			return err
		}
		if selected == PromptBack {
			return nil
		}

		if err := r.handle(ctx, r.detected.Items[idx:idx+1]); err != nil {
			return err
		}
	}
	return nil
}

func (r *scanRun) appendToExcludeFile(d *filtering.Detections, reason string) error {
	excluded, err := filtering.LoadExcludedUsers(r.exclude)
	if err != nil {
		return err
	}

	excluded.Append(d.ToExcluded(reason))

	if err = excluded.ToFile(r.exclude); err != nil {
		return err
	}

	r.logger.Info("appended to exclude file", zap.String("filename", r.exclude))

	d.Exclude(excluded.UserIDs())
	return nil
}
