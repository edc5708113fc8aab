package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"mearth/internal/app/register"
	"mearth/internal/app/scheduler"
	"mearth/internal/config"
	"mearth/internal/domain/game"
)

// simClock is a manually advanced clock shared by every use case in a
// simulation run.
type simClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *simClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *simClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newSimulateCmd(load loader) *cobra.Command {
	var (
		rounds int
		step   time.Duration
		seed   uint64
	)
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run every agent through a number of ticks on a virtual clock",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := load()
			if err != nil {
				return err
			}
			if seed != 0 {
				cfg.Loop.Seed = seed
			}
			if cfg.Poster.Kind == "feed" && cfg.HTTP.FeedAddr == "" {
				cfg.Poster.Kind = "log"
			}
			return simulate(cmd.Context(), cfg, logger, rounds, step, cmd.OutOrStdout())
		},
	}
	cmd.Flags().IntVar(&rounds, "rounds", 24, "number of ticks per agent")
	cmd.Flags().DurationVar(&step, "step", time.Hour, "virtual time between rounds")
	cmd.Flags().Uint64Var(&seed, "seed", 0, "dice seed (0 keeps the configured seed)")
	return cmd
}

func simulate(ctx context.Context, cfg config.Config, logger *slog.Logger, rounds int, step time.Duration, out io.Writer) error {
	if rounds <= 0 {
		return fmt.Errorf("%w: rounds must be positive", config.ErrInvalidConfig)
	}
	clock := &simClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	rt, err := buildRuntime(ctx, cfg, logger, clock.Now)
	if err != nil {
		return err
	}
	defer rt.close()

	if len(rt.cfg.Agents) == 0 {
		if err := seedCast(ctx, rt); err != nil {
			return err
		}
	} else if err := rt.seedAgents(ctx); err != nil {
		return err
	}
	if rt.hub != nil {
		hubCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go rt.hub.Run(hubCtx)
	}

	agents, err := rt.states.ListAll(ctx)
	if err != nil {
		return err
	}
	deps := rt.schedulerDeps()
	loops := make([]*scheduler.Loop, 0, len(agents))
	for _, a := range agents {
		loops = append(loops, scheduler.NewLoop(a.ID, deps))
	}

	outcomes := map[scheduler.Outcome]int{}
	for round := 1; round <= rounds; round++ {
		active := 0
		for _, l := range loops {
			if l.State() == scheduler.StateStopped {
				continue
			}
			active++
			res, err := l.Tick(ctx)
			if errors.Is(err, scheduler.ErrLoopStopped) {
				continue
			}
			if err != nil {
				return fmt.Errorf("round %d: %w", round, err)
			}
			outcomes[res.Outcome]++
		}
		if active == 0 {
			logger.Info("every agent is dead", "round", round)
			break
		}
		clock.Advance(step)
	}

	final, err := rt.states.ListAll(ctx)
	if err != nil {
		return err
	}
	writeStandings(out, final, outcomes)
	return nil
}

// seedCast registers one agent per character archetype.
func seedCast(ctx context.Context, rt *runtime) error {
	for _, c := range game.Characters() {
		_, err := rt.register.Execute(ctx, register.Request{AgentID: c.Key, Name: c.Name, Character: c.Key})
		if err != nil && !errors.Is(err, register.ErrAgentExists) {
			return fmt.Errorf("seed %s: %w", c.Key, err)
		}
	}
	return nil
}

func writeStandings(out io.Writer, agents []game.Agent, outcomes map[scheduler.Outcome]int) {
	sort.Slice(agents, func(i, j int) bool {
		if agents[i].Alive != agents[j].Alive {
			return agents[i].Alive
		}
		if agents[i].Tokens != agents[j].Tokens {
			return agents[i].Tokens > agents[j].Tokens
		}
		return agents[i].ID < agents[j].ID
	})
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "AGENT\tCHARACTER\tALIVE\tTOKENS\tPOSITION\tALLIES")
	for _, a := range agents {
		fmt.Fprintf(tw, "%s\t%s\t%t\t%d\t%s\t%v\n", a.ID, a.Character, a.Alive, a.Tokens, a.Position.String(), a.AllyIDs())
	}
	_ = tw.Flush()

	keys := make([]string, 0, len(outcomes))
	for k := range outcomes {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(out, "%s: %d\n", k, outcomes[scheduler.Outcome(k)])
	}
}
