package actor

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	cmdUtil "github.com/rlink-io/rlink/cmd/util"
	"github.com/rlink-io/rlink/rlink/common"
	"github.com/rlink-io/rlink/rlink/node"
	"github.com/rlink-io/rlink/rlink/reliable"
	"github.com/rlink-io/rlink/rlink/serializer"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// ActorCmd runs an actor node that produces synthetic experience and
	// streams it to a learner
	ActorCmd = &cobra.Command{
		Use:     "actor",
		Short:   "Start an actor node",
		Long:    `Start an actor node that connects to a learner and streams synthetic experience trajectories to it. The configuration can be set via command line flags or environment variables. The format of the environment variables is RLINK_<flag> (e.g. RLINK_LEARNER=10.0.0.1:5555)`,
		PreRunE: bindFlags,
		RunE:    run,
	}
)

func init() {
	// initialize viper
	cobra.OnInitialize(cmdUtil.InitNodeConfig)

	// add flags
	cmdUtil.SetupNodeFlags(ActorCmd)

	key := "learner"
	ActorCmd.PersistentFlags().String(key, "127.0.0.1:5555", cmdUtil.WrapString("The host:port of the learner to connect to"))

	key = "send-interval"
	ActorCmd.PersistentFlags().Duration(key, time.Second, cmdUtil.WrapString("Interval between synthetic trajectory sends"))

	key = "steps"
	ActorCmd.PersistentFlags().Int(key, 16, cmdUtil.WrapString("Steps per synthetic trajectory"))

	key = "obs-size"
	ActorCmd.PersistentFlags().Int(key, 128, cmdUtil.WrapString("Observation size in bytes per step"))
}

// bindFlags binds the command line flags to viper
func bindFlags(cmd *cobra.Command, _ []string) error {
	return viper.BindPFlags(cmd.Flags())
}

// run starts the actor and streams trajectories until interrupted
func run(_ *cobra.Command, _ []string) error {
	conf := cmdUtil.GetNodeConfig()
	conf.LearnerAddress = viper.GetString("learner")
	common.InitLoggers(conf.LogLevel)

	fmt.Println(conf.String())

	actor, err := node.NewActorNode(conf.LearnerAddress, node.WithConfig(conf))
	if err != nil {
		return err
	}
	defer actor.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// stop on SIGINT/SIGTERM
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	// drain learner broadcasts in the background
	go func() {
		for {
			from, payload, err := actor.Receive(ctx)
			if err != nil {
				return
			}
			fmt.Printf("broadcast from %s: %s\n", from, payload)
		}
	}()

	s := serializer.NewJSONSerializer()
	ticker := time.NewTicker(viper.GetDuration("send-interval"))
	defer ticker.Stop()

	episode := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		episode++
		payload, err := s.Serialize(syntheticTrajectory(episode, viper.GetInt("steps"), viper.GetInt("obs-size")))
		if err != nil {
			return err
		}

		handle, err := actor.Send(payload)
		if err != nil {
			fmt.Printf("send failed: %v\n", err)
			continue
		}
		if handle == nil {
			continue // best-effort mode
		}

		go func(h *reliable.Handle, episode int) {
			if outcome, err := h.Wait(ctx); outcome != reliable.OutcomeAcknowledged {
				fmt.Printf("episode %d not delivered: %v (%v)\n", episode, outcome, err)
			}
		}(handle, episode)
	}
}

// syntheticTrajectory builds a random trajectory for load generation
func syntheticTrajectory(episode, steps, obsSize int) serializer.Trajectory {
	tr := serializer.Trajectory{
		Observations: make([][]byte, steps),
		Actions:      make([][]byte, steps),
		Rewards:      make([]float64, steps),
		Meta:         []byte(fmt.Sprintf(`{"episode":%d}`, episode)),
	}
	for i := 0; i < steps; i++ {
		obs := make([]byte, obsSize)
		rand.Read(obs)
		tr.Observations[i] = obs
		tr.Actions[i] = []byte{byte(rand.Intn(4))}
		tr.Rewards[i] = rand.Float64()
	}
	return tr
}
