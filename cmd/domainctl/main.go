// Command domainctl is a small operational harness for the domain
// coordination core: it can spawn a fleet of synthetic domains, drive a
// minor-heap reservation resize, or print a point-in-time registry
// snapshot, mirroring erigon's convention of one small binary per
// operational concern under cmd/.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/gofrs/flock"
	"golang.org/x/sync/errgroup"

	"github.com/erigontech/domaincore/domain"
	"github.com/erigontech/domaincore/domain/dlog"
	"github.com/erigontech/domaincore/domain/stw"
)

var logger = dlog.New("domainctl")

type runCmd struct {
	Domains    int           `help:"number of synthetic domains to spawn." default:"4"`
	Duration   time.Duration `help:"how long to run before tearing everything down." default:"5s"`
	MaxDomains int           `help:"registry size (domain.Config.MaxDomains)." default:"128"`
	StwEvery   time.Duration `help:"period between synthetic sync STW requests." default:"200ms"`
	StateDir   string        `help:"directory holding the single-instance lockfile." default:"${tmpdir}"`
}

type resizeCmd struct {
	From       int    `help:"initial minor-heap words." default:"4096"`
	To         int    `help:"target minor-heap words." required:""`
	MaxDomains int    `help:"registry size." default:"128"`
	StateDir   string `help:"directory holding the single-instance lockfile." default:"${tmpdir}"`
}

type statusCmd struct {
	MaxDomains int    `help:"registry size." default:"128"`
	StateDir   string `help:"directory holding the single-instance lockfile." default:"${tmpdir}"`
}

var cli struct {
	Run    runCmd    `cmd:"" help:"spawn N domains running a synthetic mutator loop and periodic sync STW requests."`
	Resize resizeCmd `cmd:"" help:"drive a minor-heap reservation resize through the STW protocol."`
	Status statusCmd `cmd:"" help:"print a point-in-time registry snapshot."`
}

func main() {
	kctx := kong.Parse(&cli, kong.Vars{"tmpdir": os.TempDir()})
	if err := kctx.Run(); err != nil {
		logger.Crit(err.Error())
		os.Exit(1)
	}
}

// acquireLock takes a process-local advisory lock so two domainctl
// invocations against the same state directory don't race over the same
// minor-heap reservation.
func acquireLock(stateDir string) (*flock.Flock, error) {
	if stateDir == "" {
		stateDir = os.TempDir()
	}
	path := filepath.Join(stateDir, "domainctl.lock")
	lock := flock.New(path)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("domainctl: lock %s: %w", path, err)
	}
	if !ok {
		return nil, fmt.Errorf("domainctl: another domainctl instance holds %s", path)
	}
	return lock, nil
}

func (c *runCmd) Run() error {
	lock, err := acquireLock(c.StateDir)
	if err != nil {
		return err
	}
	defer lock.Unlock()

	cfg := domain.DefaultConfig()
	cfg.MaxDomains = c.MaxDomains

	rt, mainHandle, err := domain.NewRuntime(cfg)
	if err != nil {
		return fmt.Errorf("domainctl: start runtime: %w", err)
	}
	defer rt.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), c.Duration)
	defer cancel()

	// eg joins every spawned domain's outcome the way an operator script
	// joins a pool of workers; the first non-nil error is what Run()
	// ultimately reports, same as errgroup's usual fan-out/fan-in role.
	eg, _ := errgroup.WithContext(ctx)
	for i := 0; i < c.Domains; i++ {
		idx := i
		sp, err := domain.Spawn(rt, mainHandle, func(h *domain.Handle) (any, error) {
			return mutatorLoop(ctx, h)
		})
		if err != nil {
			logger.Warn("spawn failed", "domain", idx, "err", err)
			continue
		}
		eg.Go(func() error {
			<-sp.Done()
			if o := sp.Outcome(); o.Err != nil {
				logger.Warn("domain exited with error", "domain", idx, "err", o.Err)
				return fmt.Errorf("domain %d: %w", idx, o.Err)
			}
			return nil
		})
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	ticker := time.NewTicker(c.StwEvery)
	defer ticker.Stop()

	stwCallback := func(self stw.Participant, data any, all []stw.Participant) {}

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-sigCh:
			cancel()
			break loop
		case <-ticker.C:
			mainHandle.TryRunOnAllDomains(true, stwCallback, nil, nil, nil)
		}
	}

	if err := eg.Wait(); err != nil {
		logger.Warn("run complete with errors", "domains", c.Domains, "err", err)
	} else {
		logger.Info("run complete", "domains", c.Domains)
	}
	return nil
}

// mutatorLoop stands in for managed code: it spins, periodically polling
// its interrupt word via CPURelax (spec.md section 6's runtime yield
// hint), exactly what a real domain's allocation checkpoint does.
func mutatorLoop(ctx context.Context, h *domain.Handle) (any, error) {
	var spins uint64
	for {
		select {
		case <-ctx.Done():
			return spins, nil
		default:
		}
		h.CPURelax()
		spins++
		if spins%200000 == 0 {
			time.Sleep(time.Millisecond)
		}
	}
}

func (c *resizeCmd) Run() error {
	lock, err := acquireLock(c.StateDir)
	if err != nil {
		return err
	}
	defer lock.Unlock()

	if c.To <= c.From {
		return fmt.Errorf("domainctl: --to must exceed --from")
	}

	cfg := domain.DefaultConfig()
	cfg.MaxDomains = c.MaxDomains
	cfg.InitMinorHeapWords = c.From

	rt, mainHandle, err := domain.NewRuntime(cfg)
	if err != nil {
		return fmt.Errorf("domainctl: start runtime: %w", err)
	}
	defer rt.Shutdown()

	logger.Info("resizing minor heap reservation", "from", c.From, "to", c.To)
	if err := mainHandle.ResizeMinorHeapReservation(c.To); err != nil {
		return fmt.Errorf("domainctl: resize: %w", err)
	}
	logger.Info("resize complete", "words", rt.MinorHeap.MaxWords())
	return nil
}

func (c *statusCmd) Run() error {
	lock, err := acquireLock(c.StateDir)
	if err != nil {
		return err
	}
	defer lock.Unlock()

	cfg := domain.DefaultConfig()
	cfg.MaxDomains = c.MaxDomains

	rt, _, err := domain.NewRuntime(cfg)
	if err != nil {
		return fmt.Errorf("domainctl: start runtime: %w", err)
	}
	defer rt.Shutdown()

	snap := rt.Registry.RegistrySnapshot()
	fmt.Printf("running: %s\n", snap.Running.String())
	for id, uid := range snap.UniqueIDs {
		stats := snap.AllocStats[id]
		fmt.Printf("  slot %d: unique_id=%d minor_words=%d minor_collections=%d major_words=%d\n",
			id, uid, stats.MinorWordsAllocated, stats.MinorCollections, stats.MajorWordsAllocated)
	}
	return nil
}
