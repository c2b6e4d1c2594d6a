package sim

import (
	"context"
	"fmt"

	"github.com/mash-protocol/lorawan-node/pkg/bootcycle"
	"github.com/mash-protocol/lorawan-node/pkg/durable"
	"github.com/mash-protocol/lorawan-node/pkg/retained"
)

// Node is a simulated end device: a board, the network it talks to and the
// controller configuration it boots with.
type Node struct {
	Board   *Board
	Network *Network
	Config  bootcycle.Config
	Radio   RadioConfig

	// Region and Store override the board's retained memory and flash.
	Region retained.Region
	Store  durable.Opener
}

// BootResult describes one finished boot.
type BootResult struct {
	BootID string
	Exit   Exit
	Err    error
	State  retained.State
}

// NewNode creates a node on a fresh board and registers it with net.
func NewNode(net *Network, cfg bootcycle.Config) (*Node, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := net.Register(cfg.Credentials); err != nil {
		return nil, err
	}
	return &Node{
		Board:   NewBoard(BoardConfig{}),
		Network: net,
		Config:  cfg,
	}, nil
}

// Boot runs one boot cycle with a freshly initialized radio.
func (n *Node) Boot(ctx context.Context) (BootResult, error) {
	cfg := n.Config
	if cfg.Now == nil {
		cfg.Now = n.Board.Now
	}
	rc := n.Radio
	if rc.Now == nil {
		rc.Now = n.Board.Now
	}

	deps := bootcycle.Deps{
		Link:     NewRadio(n.Network, rc),
		Platform: n.Board,
		Region:   n.Region,
		Store:    n.Store,
	}
	if deps.Region == nil {
		deps.Region = n.Board.Region()
	}
	if deps.Store == nil {
		deps.Store = n.Board.Flash()
	}

	ctrl, err := bootcycle.New(cfg, deps)
	if err != nil {
		return BootResult{}, fmt.Errorf("create controller: %w", err)
	}

	exit, runErr := n.Board.Boot(func() error { return ctrl.Run(ctx) })
	return BootResult{
		BootID: ctrl.BootID(),
		Exit:   exit,
		Err:    runErr,
		State:  ctrl.State(),
	}, nil
}

// PowerLoss cuts power to the board and invalidates an overriding Region.
func (n *Node) PowerLoss() error {
	n.Board.PowerLoss()
	if n.Region != nil {
		return retained.Clear(n.Region)
	}
	return nil
}

// Run boots the node count times or until a boot returns an error or ctx is
// done.
func (n *Node) Run(ctx context.Context, count int) ([]BootResult, error) {
	if count <= 0 {
		return nil, nil
	}
	results := make([]BootResult, 0, count)
	for i := 0; i < count; i++ {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		res, err := n.Boot(ctx)
		if err != nil {
			return results, err
		}
		results = append(results, res)
		if res.Err != nil {
			return results, res.Err
		}
	}
	return results, nil
}
