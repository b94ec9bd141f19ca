package cmd

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/rahataid/rahat-offramp/cmd/offramp/internal/output"
	"github.com/rahataid/rahat-offramp/pkg/events"
)

var (
	eventTopics   []string
	eventSession  string
	fromBeginning bool
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Offramp event stream commands",
}

var eventsTailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Follow events published by the offramp service",
	Long: `Print session transitions, submitted transfers and status changes as
the offramp service publishes them to Kafka. Brokers come from the
kafka_brokers setting.`,
	Example: `  offramp events tail --topic offramp.status.changed
  offramp events tail --session 3f0c...`,
	RunE: runEventsTail,
}

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.AddCommand(eventsTailCmd)

	eventsTailCmd.Flags().StringSliceVarP(&eventTopics, "topic", "t", events.AllTopics, "topics to follow")
	eventsTailCmd.Flags().StringVarP(&eventSession, "session", "s", "", "only show events for this session")
	eventsTailCmd.Flags().BoolVar(&fromBeginning, "from-beginning", false, "replay retained events first")
}

func runEventsTail(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	brokers := strings.Split(viper.GetString("kafka_brokers"), ",")

	// a fresh group per run, so tails never steal messages from each other
	sub := events.NewKafkaSubscriber(brokers, "offramp-cli-"+uuid.NewString()[:8])
	if !fromBeginning {
		sub.StartAtLatest()
	}
	defer sub.Close()

	for _, topic := range eventTopics {
		err := sub.Subscribe(ctx, topic, func(e *events.Event) error {
			if eventSession != "" && e.CorrelationID != eventSession {
				return nil
			}
			printEvent(topic, e)
			return nil
		})
		if err != nil {
			return err
		}
	}

	output.Info(fmt.Sprintf("Following %s on %s, Ctrl-C to stop", strings.Join(eventTopics, ", "), strings.Join(brokers, ",")))
	<-ctx.Done()
	return nil
}

func printEvent(topic string, e *events.Event) {
	if getFormat() == "json" {
		_ = output.JSON(e)
		return
	}
	fmt.Fprintf(output.Stdout, "%s  %-28s %-22s %s  %v\n",
		e.OccurredAt.Local().Format("15:04:05"),
		topic,
		e.EventType,
		output.Short(e.CorrelationID),
		e.Payload,
	)
}
