package learner

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	cmdUtil "github.com/rlink-io/rlink/cmd/util"
	"github.com/rlink-io/rlink/rlink/common"
	"github.com/rlink-io/rlink/rlink/node"
	"github.com/rlink-io/rlink/rlink/router"
	"github.com/rlink-io/rlink/rlink/serializer"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// LearnerCmd runs a learner node that accepts actors and drains their
	// experience streams
	LearnerCmd = &cobra.Command{
		Use:     "learner",
		Short:   "Start a learner node",
		Long:    `Start a learner node that binds a port, accepts actor connections and consumes their experience streams. The configuration can be set via command line flags or environment variables. The format of the environment variables is RLINK_<flag> (e.g. RLINK_PORT=5555)`,
		PreRunE: bindFlags,
		RunE:    run,
	}
)

func init() {
	// initialize viper
	cobra.OnInitialize(cmdUtil.InitNodeConfig)

	// add flags
	cmdUtil.SetupNodeFlags(LearnerCmd)

	key := "port"
	LearnerCmd.PersistentFlags().Int(key, 5555, cmdUtil.WrapString("The port the learner binds for actor connections"))

	key = "host"
	LearnerCmd.PersistentFlags().String(key, "127.0.0.1", cmdUtil.WrapString("The host the learner announces to actors and binds to"))

	key = "status-endpoint"
	LearnerCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("Address for the HTTP status and metrics endpoint (e.g. 127.0.0.1:8080, empty disables)"))

	key = "broadcast-interval"
	LearnerCmd.PersistentFlags().Duration(key, 0, cmdUtil.WrapString("When set, broadcast a synthetic parameter update to all actors at this interval (demo mode)"))
}

// bindFlags binds the command line flags to viper
func bindFlags(cmd *cobra.Command, _ []string) error {
	return viper.BindPFlags(cmd.Flags())
}

// run starts the learner and drains the fan-in queue until interrupted
func run(_ *cobra.Command, _ []string) error {
	conf := cmdUtil.GetNodeConfig()
	conf.Port = viper.GetInt("port")
	conf.StatusAddr = viper.GetString("status-endpoint")
	common.InitLoggers(conf.LogLevel)

	fmt.Println(conf.String())

	learner, err := node.NewLearnerNode(conf.Port,
		node.WithConfig(conf),
		node.WithIdentity(viper.GetString("host"), conf.Port),
	)
	if err != nil {
		return err
	}
	defer learner.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// stop on SIGINT/SIGTERM
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	if interval := viper.GetDuration("broadcast-interval"); interval > 0 {
		go broadcastLoop(ctx, learner, interval)
	}

	s := serializer.NewJSONSerializer()
	for {
		from, payload, err := learner.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		var tr serializer.Trajectory
		if err := s.Deserialize(payload, &tr); err != nil {
			fmt.Printf("received %d opaque bytes from %s\n", len(payload), from)
			continue
		}
		fmt.Printf("received %d steps (%d bytes) from %s\n", tr.Steps(), len(payload), from)
	}
}

// broadcastLoop periodically fans a synthetic parameter update out to all
// connected actors
func broadcastLoop(ctx context.Context, learner *node.LearnerNode, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	version := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		version++
		payload := []byte(fmt.Sprintf(`{"params_version":%d}`, version))
		res := learner.Broadcast(payload, router.GroupActors)
		if !res.AllSent() {
			for addr, err := range res.Failed {
				fmt.Printf("broadcast to %s failed: %v\n", addr, err)
			}
		}
	}
}
