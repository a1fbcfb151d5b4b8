package orders

import (
	"fmt"

	"ffcentral/pairing"
	"ffcentral/protocol"

	"github.com/google/uuid"
)

// processCommand maps a processing module type to the command it runs on a workpiece.
var processCommand = map[string]string{
	pairing.ModuleDrill: protocol.CommandDrill,
	pairing.ModuleMill:  protocol.CommandMill,
	pairing.ModuleAIQS:  protocol.CommandCheckQuality,
	pairing.ModuleOven:  protocol.CommandFire,
}

type chain struct {
	steps []*Step
}

func newStepID() string { return uuid.New().String() }

func (c *chain) add(s *Step) {
	s.ID = newStepID()
	s.State = Enqueued
	if n := len(c.steps); n > 0 {
		s.DependentActionID = c.steps[n-1].ID
	}
	c.steps = append(c.steps, s)
}

func (c *chain) navigate(source, target string) {
	c.add(&Step{Type: Navigation, Source: source, Target: target})
}

func (c *chain) manufacture(module, command string) {
	c.add(&Step{Type: Manufacture, Module: module, Command: command})
}

// BuildSteps creates the step chain of an order. DROP puts the workpiece from
// the module onto the docked vehicle and PICK takes it off again.
func BuildSteps(orderType OrderType, plan []string) ([]*Step, error) {
	c := &chain{}
	switch orderType {
	case Storage:
		c.navigate("", pairing.ModuleDPS)
		c.manufacture(pairing.ModuleDPS, protocol.CommandDrop)
		c.navigate(pairing.ModuleDPS, pairing.ModuleHBW)
		c.manufacture(pairing.ModuleHBW, protocol.CommandPick)
	case Production:
		if len(plan) == 0 {
			return nil, fmt.Errorf("empty production plan")
		}
		c.navigate("", pairing.ModuleHBW)
		c.manufacture(pairing.ModuleHBW, protocol.CommandDrop)
		prev := pairing.ModuleHBW
		for _, module := range plan {
			cmd, ok := processCommand[module]
			if !ok {
				return nil, fmt.Errorf("module type %s cannot process workpieces", module)
			}
			c.navigate(prev, module)
			c.manufacture(module, protocol.CommandPick)
			c.manufacture(module, cmd)
			c.navigate("", module)
			c.manufacture(module, protocol.CommandDrop)
			prev = module
		}
		c.navigate(prev, pairing.ModuleDPS)
		c.manufacture(pairing.ModuleDPS, protocol.CommandPick)
	default:
		return nil, fmt.Errorf("unknown order type %q", orderType)
	}
	return c.steps, nil
}
