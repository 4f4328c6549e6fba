package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/socius/internal/agent"
	"github.com/spigell/socius/internal/logger"
	"github.com/spigell/socius/internal/permissions"
)

const (
	PromptYes = "Yes"
	PromptNo  = "No"
)

var nearbyCmd = &cobra.Command{
	Use:   "nearby <other-user-id>",
	Short: "Handle a person detected nearby: score, ask if needed and reach out",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		nearby(cmd, args[0])
	},
}

func init() {
	rootCmd.AddCommand(nearbyCmd)

	nearbyCmd.Flags().StringP("user", "u", "", "user the assistant acts for (default is user-id)")
	nearbyCmd.Flags().String("event", "", "event where the person was detected")
	nearbyCmd.Flags().String("location", "", "location where the person was detected")
	nearbyCmd.Flags().StringToString("context", nil, "extra detection context as key=value pairs")
	nearbyCmd.Flags().BoolP("no-prompt", "n", false, "decline permission requests instead of asking")
}

func nearby(cmd *cobra.Command, otherUserID string) {
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

	c, err := newComponents(ctx, config, true, logger)
	if err != nil {
		logger.Fatal("building components", zap.Error(err))
	}

	a, err := c.newAgent(ctx, config, userID, logger)
	if err != nil {
		logger.Fatal("starting the agent", zap.Error(err))
	}

	extra, _ := cmd.Flags().GetStringToString("context")
	detection := agent.Detection{}
	for k, v := range extra {
		detection[k] = v
	}
	if event, _ := cmd.Flags().GetString("event"); event != "" {
		detection["event_name"] = event
	}
	if location, _ := cmd.Flags().GetString("location"); location != "" {
		detection["location"] = location
	}

	var ask approver = askApproval
	if noPrompt, _ := cmd.Flags().GetBool("no-prompt"); noPrompt {
		ask = nil
	}

	outcome, err := handleDetection(ctx, a, c.policy, otherUserID, detection, ask, logger)
	if err != nil {
		logger.Fatal("handling detection", zap.String("other_user_id", otherUserID), zap.Error(err))
	}

	printJSON(outcome)
}

// nearbyAgent is the part of the agent the nearby flow drives.
type nearbyAgent interface {
	UserID() string
	HandleNewPersonNearby(ctx context.Context, otherUserID string, detection agent.Detection) (*agent.Outcome, error)
	ReachOut(ctx context.Context, otherUserID string, detection agent.Detection) (*agent.Outcome, error)
}

// permissionBook reads the user's levels and records their answers.
type permissionBook interface {
	UserPermissions(ctx context.Context, userID string) (permissions.Permissions, error)
	LogPermissionResponse(ctx context.Context, userID string, action permissions.ActionType, approved bool, details map[string]any) error
}

// approver asks the user whether to reach out.
type approver func(outcome *agent.Outcome) (bool, error)

const reasonOutreachNever = "Outreach is set to never"

// handleDetection runs the nearby flow and settles permission requests with the
// user. A nil ask declines every request. Each answer is logged. Nobody is asked
// when messaging is set to never.
func handleDetection(ctx context.Context, a nearbyAgent, policy permissionBook, otherUserID string, detection agent.Detection, ask approver, logger *zap.Logger) (*agent.Outcome, error) {
	outcome, err := a.HandleNewPersonNearby(ctx, otherUserID, detection)
	if err != nil {
		return nil, err
	}
	if outcome.Action != agent.ActionRequestPermission {
		return outcome, nil
	}

	perms, err := policy.UserPermissions(ctx, a.UserID())
	if err != nil {
		return nil, err
	}
	if perms[permissions.SendMessage] == permissions.Never {
		logger.Info("outreach is disabled, skipping", zap.String("other_user_id", otherUserID))
		return &agent.Outcome{
			Action:     agent.ActionSkip,
			Reason:     reasonOutreachNever,
			OtherUser:  outcome.OtherUser,
			MatchScore: outcome.MatchScore,
			Context:    outcome.Context,
		}, nil
	}

	approved := false
	if ask != nil {
		approved, err = ask(outcome)
		if err != nil {
			return nil, err
		}
	}

	details := map[string]any{
		"other_user_id": otherUserID,
		"reason":        outcome.Reason,
		"context":       map[string]any(detection),
		"interactive":   ask != nil,
	}
	if outcome.MatchScore != nil {
		details["match_score"] = *outcome.MatchScore
	}

	if err := policy.LogPermissionResponse(ctx, a.UserID(), permissions.SendMessage, approved, details); err != nil {
		logger.Warn("recording permission answer", zap.Error(err))
	}

	if !approved {
		logger.Info("outreach declined", zap.String("other_user_id", otherUserID))
		return outcome, nil
	}

	return a.ReachOut(ctx, otherUserID, detection)
}

func askApproval(outcome *agent.Outcome) (bool, error) {
	name := outcome.OtherUser.DisplayName("this person")

	score := 0.0
	if outcome.MatchScore != nil {
		score = *outcome.MatchScore
	}

	prompt := promptui.Select{
		Label: fmt.Sprintf("Reach out to %s (score %.2f, %s)?", name, score, outcome.Reason),
		Items: []string{PromptYes, PromptNo},
	}

	_, answer, err := prompt.Run()
	if err != nil {
		return false, err
	}
	return answer == PromptYes, nil
}

func printJSON(v any) {
	// do not bother error since values are plain structs
	pretty, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(pretty))
}
