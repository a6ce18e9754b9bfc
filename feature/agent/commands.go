package agent

import (
	"errors"
	"fmt"
	"strings"

	"stock-sync/core/inventory"

	"go.uber.org/zap"
)

// Command names.
const (
	CmdSync            = "sync"
	CmdVerify          = "verify"
	CmdCheck           = "check"
	CmdResetAPIHistory = "resetapihistory"
	CmdStatus          = "status"
	CmdQuit            = "quit"
)

// ErrUnknownCommand is returned by ParseCommand for unrecognised input.
var ErrUnknownCommand = errors.New("agent: unknown command")

// Command is a parsed console or HTTP command.
type Command struct {
	Name string
	// Services the command applies to; empty means every service.
	Services []inventory.Service
}

// ParseCommand parses lines such as "sync", "verify secondary" or "quit".
func ParseCommand(line string) (Command, error) {
	fields := strings.Fields(strings.ToLower(line))
	if len(fields) == 0 {
		return Command{}, fmt.Errorf("%w: empty line", ErrUnknownCommand)
	}

	cmd := Command{Name: fields[0]}
	takesService := false
	switch cmd.Name {
	case CmdSync, CmdVerify, CmdCheck, CmdResetAPIHistory:
		takesService = true
	case CmdStatus, CmdQuit:
	default:
		return Command{}, fmt.Errorf("%w: %q", ErrUnknownCommand, fields[0])
	}

	args := fields[1:]
	if len(args) > 0 && !takesService {
		return Command{}, fmt.Errorf("%w: %s takes no arguments", ErrUnknownCommand, cmd.Name)
	}
	for _, arg := range args {
		svc, err := inventory.ParseService(arg)
		if err != nil {
			return Command{}, err
		}
		cmd.Services = append(cmd.Services, svc)
	}
	return cmd, nil
}

// Execute parses and applies a command line. It must be called from the
// loop goroutine; other goroutines deliver lines through Run.
func (a *Agent) Execute(line string) {
	cmd, err := ParseCommand(line)
	if err != nil {
		a.logger.Warn("Ignoring command", zap.String("line", line), zap.Error(err))
		return
	}
	a.logger.Info("Command received", zap.String("command", cmd.Name))
	a.apply(cmd)
}

func (a *Agent) apply(cmd Command) {
	now := a.now()
	targets := cmd.Services
	if len(targets) == 0 {
		targets = a.services
	}

	for _, svc := range targets {
		s, ok := a.states[svc]
		if !ok {
			if cmd.Name != CmdStatus && cmd.Name != CmdQuit {
				a.logger.Warn("Service not enabled", zap.String("service", svc.String()))
			}
			continue
		}
		switch cmd.Name {
		case CmdSync:
			s.MustSync = true
			s.NextSync = now
		case CmdVerify:
			s.verifyRequested = true
		case CmdCheck:
			s.MustCheck = true
		case CmdResetAPIHistory:
			s.History.Reset(now)
			a.logger.Info("API history reset", zap.String("service", svc.String()))
		}
	}

	switch cmd.Name {
	case CmdStatus:
		a.publish(now)
		a.logStatus()
	case CmdQuit:
		a.quit = true
	case CmdResetAPIHistory:
		a.commit()
	}
}

func (a *Agent) logStatus() {
	snap := a.Status()
	if snap == nil {
		return
	}
	a.logger.Info("Inventory",
		zap.Int("lots", snap.Inventory.Lots),
		zap.Int("units", snap.Inventory.Units),
		zap.Float64("value", snap.Inventory.Value),
	)
	for _, st := range snap.Services {
		a.logger.Info("Service",
			zap.String("service", st.Service),
			zap.Bool("must_check", st.MustCheck),
			zap.Bool("must_sync", st.MustSync),
			zap.Bool("must_update", st.MustUpdate),
			zap.Bool("partial_sync", st.PartialSync),
			zap.Int("pending", st.Pending),
			zap.String("in_flight", st.InFlight),
			zap.String("backoff", st.Backoff),
			zap.Time("next_sync", st.NextSync),
			zap.Int("api_usage_24h", st.APIUsage),
			zap.Int("daily_limit", st.DailyLimit),
		)
	}
}
