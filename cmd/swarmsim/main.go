package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/swarmlink/swarmlink/internal/core/netsim"
	"github.com/swarmlink/swarmlink/internal/core/observability/log"
	"github.com/swarmlink/swarmlink/internal/core/protocol"
	"github.com/swarmlink/swarmlink/internal/core/swarm"
)

func main() {
	scenarioPath := flag.String("scenario", "", "YAML scenario file (default: built-in three-robot fleet)")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	level := log.LevelInfo
	if *verbose {
		level = log.LevelDebug
	}
	logger := log.New(level)

	scenario := swarm.DefaultScenario()
	if *scenarioPath != "" {
		f, err := os.Open(*scenarioPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "opening scenario:", err)
			os.Exit(1)
		}
		scenario, err = swarm.LoadScenario(f)
		_ = f.Close()
		if err != nil {
			fmt.Fprintln(os.Stderr, "loading scenario:", err)
			os.Exit(1)
		}
	}

	sim, robots := scenario.Build(logger)
	defer func() {
		for _, r := range robots {
			r.Close()
		}
		sim.Close()
	}()

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, os.Interrupt, syscall.SIGTERM)
	doneCh := make(chan struct{})
	go func() {
		runDemo(logger, sim, robots)
		close(doneCh)
	}()

	select {
	case <-stopCh:
		logger.Info("interrupted, shutting down")
	case <-doneCh:
	}
}

// runDemo walks the fleet through the full protocol surface: liveness,
// telemetry, tasking, coordination and the emergency path.
func runDemo(logger log.Log, sim *netsim.Simulator, robots []*swarm.Robot) {
	if len(robots) < 3 {
		logger.Error("demo needs at least three robots", log.Int("robots", len(robots)))
		return
	}
	settle := func() { time.Sleep(500 * time.Millisecond) }

	logger.Info("phase: heartbeats")
	var g errgroup.Group
	for _, r := range robots {
		r := r
		g.Go(func() error {
			r.SendHeartbeat()
			return nil
		})
	}
	_ = g.Wait()
	settle()

	logger.Info("phase: position updates")
	for _, r := range robots {
		r.SendPositionUpdate()
	}
	settle()

	logger.Info("phase: task assignment")
	patrol := protocol.NewTaskAssignment("TASK_"+uuid.NewString()[:8], "PATROL",
		protocol.Position{X: 20, Y: 20})
	patrol.Parameters["speed"] = "2.0"
	patrol.Parameters["duration"] = "300"
	robots[0].AssignTask(robots[1].ID(), patrol)

	collect := protocol.NewTaskAssignment("TASK_"+uuid.NewString()[:8], "COLLECT",
		protocol.Position{X: 15, Y: -10, Heading: 0.7853981633974483})
	collect.Parameters["object_type"] = "sample"
	collect.Parameters["container"] = "A1"
	robots[0].AssignTask(robots[2].ID(), collect)
	settle()

	logger.Info("phase: status reports")
	robots[0].UpdateBattery(0.85)
	robots[0].SetState(protocol.StateCoordinating)
	robots[0].AddSensorReading("temperature", 23.5)
	robots[1].UpdateBattery(0.72)
	robots[1].UpdatePosition(12, 8, 0, 1.0471975511965976)
	robots[1].AddSensorReading("distance", 1.25)
	robots[2].UpdateBattery(0.91)
	robots[2].AddSensorReading("light_level", 850.0)
	for _, r := range robots {
		r.SendStatusReport()
	}
	settle()

	logger.Info("phase: coordination and sensor sharing")
	robots[1].Send(robots[0].ID(), protocol.MessageTypeCoordinationRequest,
		[]byte("request_path_coordination_zone_A"))
	robots[0].Send(robots[1].ID(), protocol.MessageTypeSensorData,
		[]byte("obstacle_detected:x=15,y=12,size=large"))
	settle()

	logger.Info("phase: emergency stop")
	robots[2].SendEmergencyStop()
	settle()

	logger.Info("phase: degraded network burst")
	sim.SetLossRate(0.2)
	sim.SetDelay(200 * time.Millisecond)
	accepted := 0
	for i := 0; i < 5; i++ {
		if robots[0].Send(robots[1].ID(), protocol.MessageTypeHeartbeat,
			[]byte(fmt.Sprintf("test_%d", i))) {
			accepted++
		}
		time.Sleep(100 * time.Millisecond)
	}
	logger.Info("burst finished", log.Int("accepted", accepted), log.Int("sent", 5))
	time.Sleep(time.Second)

	stats := sim.Stats()
	logger.Info("network stats",
		log.Uint64("accepted", stats.Accepted),
		log.Uint64("dropped", stats.Dropped),
		log.Uint64("delivered", stats.Delivered),
		log.Uint64("broadcasts", stats.Broadcasts),
		log.Uint64("unknown_receiver", stats.UnknownReceiver),
		log.Int("unique_frames", stats.UniqueFrames))
	for _, r := range robots {
		st := r.Status()
		logger.Info("final status",
			log.String("robot", r.Name()),
			log.String("state", st.State),
			log.Float64("battery", st.Battery),
			log.String("task", st.CurrentTask))
	}
}
