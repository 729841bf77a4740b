package swarm

import (
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/swarmlink/swarmlink/internal/core/netsim"
	"github.com/swarmlink/swarmlink/internal/core/observability/log"
	"github.com/swarmlink/swarmlink/internal/core/protocol"
)

// Scenario describes a fleet and the network conditions it runs under.
type Scenario struct {
	Network NetworkConfig `yaml:"network"`
	Robots  []RobotConfig `yaml:"robots"`
}

type NetworkConfig struct {
	LossRate float64  `yaml:"loss_rate"`
	Delay    Duration `yaml:"delay"`
	Jitter   Duration `yaml:"jitter,omitempty"`
	Seed     int64    `yaml:"seed,omitempty"`
}

// Duration accepts both Go duration strings ("100ms") and raw nanosecond
// integers in YAML.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("parsing duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}
	var n int64
	if err := value.Decode(&n); err != nil {
		return fmt.Errorf("duration must be a string or integer: %w", err)
	}
	*d = Duration(n)
	return nil
}

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

type RobotConfig struct {
	ID      int32   `yaml:"id"`
	Name    string  `yaml:"name"`
	X       float64 `yaml:"x"`
	Y       float64 `yaml:"y"`
	Z       float64 `yaml:"z"`
	Heading float64 `yaml:"heading"`
}

// LoadScenario reads a YAML scenario description.
func LoadScenario(r io.Reader) (*Scenario, error) {
	var s Scenario
	dec := yaml.NewDecoder(r)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("decoding scenario: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks identities and network bounds.
func (s *Scenario) Validate() error {
	if len(s.Robots) == 0 {
		return fmt.Errorf("scenario has no robots")
	}
	if s.Network.LossRate < 0 || s.Network.LossRate > 1 {
		return fmt.Errorf("loss_rate %v outside [0,1]", s.Network.LossRate)
	}
	if s.Network.Delay < 0 {
		return fmt.Errorf("delay %v is negative", s.Network.Delay.Std())
	}

	seen := make(map[int32]struct{}, len(s.Robots))
	for _, rc := range s.Robots {
		if protocol.RobotID(rc.ID) == protocol.Broadcast || rc.ID < 0 {
			return fmt.Errorf("robot id %d is reserved or negative", rc.ID)
		}
		if _, dup := seen[rc.ID]; dup {
			return fmt.Errorf("duplicate robot id %d", rc.ID)
		}
		seen[rc.ID] = struct{}{}
		if rc.Name == "" {
			return fmt.Errorf("robot %d has no name", rc.ID)
		}
	}
	return nil
}

// Build materializes the scenario: one simulator plus one registered robot
// per config entry. The caller owns shutdown of everything returned.
func (s *Scenario) Build(logger log.Log) (*netsim.Simulator, []*Robot) {
	opts := []netsim.Option{
		netsim.WithLossRate(s.Network.LossRate),
		netsim.WithDelay(s.Network.Delay.Std()),
		netsim.WithJitter(s.Network.Jitter.Std()),
		netsim.WithLogger(logger),
	}
	if s.Network.Seed != 0 {
		opts = append(opts, netsim.WithSeed(s.Network.Seed))
	}
	sim := netsim.New(opts...)

	robots := make([]*Robot, 0, len(s.Robots))
	for _, rc := range s.Robots {
		pos := protocol.Position{X: rc.X, Y: rc.Y, Z: rc.Z, Heading: rc.Heading}
		robot := NewRobot(protocol.RobotID(rc.ID), rc.Name, pos, sim, WithRobotLogger(logger))
		sim.Register(robot)
		robots = append(robots, robot)
	}
	return sim, robots
}

// DefaultScenario mirrors the canonical three-robot demo fleet.
func DefaultScenario() *Scenario {
	return &Scenario{
		Network: NetworkConfig{
			LossRate: 0.05,
			Delay:    Duration(100 * time.Millisecond),
			Seed:     42,
		},
		Robots: []RobotConfig{
			{ID: 1, Name: "Explorer"},
			{ID: 2, Name: "Worker", X: 10, Y: 5, Heading: 1.5707963267948966},
			{ID: 3, Name: "Guardian", X: -5, Y: 10, Heading: 3.141592653589793},
		},
	}
}
