package placement

import "testing"

func newTestCoordinator(t *testing.T) *Coordinator {
	t.Helper()
	return New(0)
}

func register(t *testing.T, c *Coordinator, ip string, near bool, containers ...Container) {
	t.Helper()
	if err := c.RegisterAgent(ip, 10000, 0, near, containers); err != nil {
		t.Fatal(err)
	}
}

func TestRegisterAndLiveness(t *testing.T) {
	c := newTestCoordinator(t)
	register(t, c, "10.0.0.1", true, Container{ID: 1, Capacity: 100}, Container{ID: 2, Capacity: 100})

	status, failed := c.CheckLiveness([]int{1, 2, 99}, -1, true)
	if failed != 1 {
		t.Fatalf("expected 1 failed (unmapped id 99), got %d", failed)
	}
	if !status[0] || !status[1] || status[2] {
		t.Fatalf("unexpected status: %v", status)
	}

	c.SetAgentAlive("10.0.0.1", false)
	status, failed = c.CheckLiveness([]int{1, 2}, -1, true)
	if failed != 2 {
		t.Fatalf("expected both containers down with agent, got %d failed", failed)
	}
	_ = status
}

func TestRegisterRejectsReachableDuplicate(t *testing.T) {
	c := newTestCoordinator(t)
	register(t, c, "10.0.0.1", true, Container{ID: 1, Capacity: 100})
	err := c.RegisterAgent("10.0.0.2", 10000, 0, true, []Container{{ID: 1, Capacity: 100}})
	if err == nil {
		t.Fatal("expected rejection of duplicate container id owned by a reachable agent")
	}
}

func TestRegisterTransfersFromUnreachableOwner(t *testing.T) {
	c := newTestCoordinator(t)
	register(t, c, "10.0.0.1", true, Container{ID: 1, Capacity: 100})
	c.SetAgentAlive("10.0.0.1", false)

	if err := c.RegisterAgent("10.0.0.2", 10000, 0, true, []Container{{ID: 1, Capacity: 100}}); err != nil {
		t.Fatalf("expected transfer to succeed, got %v", err)
	}
	status, _ := c.CheckLiveness([]int{1}, -1, true)
	if !status[0] {
		t.Fatal("expected container 1 alive under new owner")
	}
}

func TestFindSpareExcludesAliveExisting(t *testing.T) {
	c := newTestCoordinator(t)
	register(t, c, "10.0.0.1", true,
		Container{ID: 1, Capacity: 1000},
		Container{ID: 2, Capacity: 1000},
		Container{ID: 3, Capacity: 1000})

	existing := []int{1}
	status := []bool{true}
	selected, err := c.FindSpareContainers(existing, status, 1, 100, 4, 2, 0, Static)
	if err != nil {
		t.Fatal(err)
	}
	if len(selected) != 1 || selected[0] == 1 {
		t.Fatalf("expected a spare other than container 1, got %v", selected)
	}
}

func TestFindSpareCapacityConstraint(t *testing.T) {
	c := newTestCoordinator(t)
	register(t, c, "10.0.0.1", true,
		Container{ID: 1, Capacity: 10, Usage: 9},
		Container{ID: 2, Capacity: 1000, Usage: 0})

	selected, err := c.FindSpareContainers(nil, nil, 1, 100, 4, 2, 0, Static)
	if err != nil {
		t.Fatal(err)
	}
	if len(selected) != 1 || selected[0] != 2 {
		t.Fatalf("expected container 2 (has capacity), got %v", selected)
	}
}

func TestFindSparePerAgentLimit(t *testing.T) {
	c := newTestCoordinator(t)
	register(t, c, "10.0.0.1", true,
		Container{ID: 1, Capacity: 1000},
		Container{ID: 2, Capacity: 1000},
		Container{ID: 3, Capacity: 1000})

	// n=6, k=2, f=2 -> per-agent limit = (6-2)/2 = 2.
	selected, err := c.FindSpareContainers(nil, nil, 3, 10, 6, 2, 2, Static)
	if err == nil {
		t.Fatalf("expected insufficient capacity across agents due to per-agent limit, got %v", selected)
	}
}

func TestFindSpareCapacityConstraintUsesRealK(t *testing.T) {
	c := newTestCoordinator(t)
	register(t, c, "10.0.0.1", true, Container{ID: 1, Capacity: 50, Usage: 0})

	// required(100, k=10) = ceil((100+20)/10) = 12, which fits in 50.
	// Substituting k=1 (the bug) would compute ceil(102) = 102 and
	// wrongly reject this container.
	selected, err := c.FindSpareContainers(nil, nil, 1, 100, 20, 10, 0, Static)
	if err != nil {
		t.Fatalf("expected container to qualify under the real k=10 bound, got %v", err)
	}
	if len(selected) != 1 || selected[0] != 1 {
		t.Fatalf("expected container 1 selected, got %v", selected)
	}
}

func TestFindSpareInsufficientCapacity(t *testing.T) {
	c := newTestCoordinator(t)
	register(t, c, "10.0.0.1", true, Container{ID: 1, Capacity: 5, Usage: 5})

	_, err := c.FindSpareContainers(nil, nil, 1, 1000, 4, 2, 0, Static)
	if err != ErrInsufficientCapacity {
		t.Fatalf("expected ErrInsufficientCapacity, got %v", err)
	}
}

func TestFindSpareStaticPrefersNear(t *testing.T) {
	c := newTestCoordinator(t)
	register(t, c, "far.agent", false, Container{ID: 1, Capacity: 1000})
	register(t, c, "near.agent", true, Container{ID: 2, Capacity: 1000})

	selected, err := c.FindSpareContainers(nil, nil, 1, 10, 4, 2, 0, Static)
	if err != nil {
		t.Fatal(err)
	}
	if selected[0] != 2 {
		t.Fatalf("expected near container 2 selected before far container 1, got %v", selected)
	}
}

func TestFindSpareLeastUsedOrdering(t *testing.T) {
	c := newTestCoordinator(t)
	register(t, c, "10.0.0.1", true,
		Container{ID: 1, Capacity: 1000, Usage: 500},
		Container{ID: 2, Capacity: 1000, Usage: 10})

	selected, err := c.FindSpareContainers(nil, nil, 1, 10, 4, 2, 0, LeastUsed)
	if err != nil {
		t.Fatal(err)
	}
	if selected[0] != 2 {
		t.Fatalf("expected least-used container 2 first, got %v", selected)
	}
}

func TestFindSpareRoundRobinAdvances(t *testing.T) {
	c := newTestCoordinator(t)
	register(t, c, "10.0.0.1", true, Container{ID: 1, Capacity: 1000}, Container{ID: 2, Capacity: 1000})

	first, err := c.FindSpareContainers(nil, nil, 1, 10, 4, 2, 0, RoundRobin)
	if err != nil {
		t.Fatal(err)
	}
	second, err := c.FindSpareContainers(nil, nil, 1, 10, 4, 2, 0, RoundRobin)
	if err != nil {
		t.Fatal(err)
	}
	if first[0] == second[0] {
		t.Fatalf("expected round robin to advance starting container, got %v then %v", first, second)
	}
}

func TestFindChunkGroups(t *testing.T) {
	c := newTestCoordinator(t)
	register(t, c, "10.0.0.1", true, Container{ID: 1, Capacity: 1000}, Container{ID: 2, Capacity: 1000})
	register(t, c, "10.0.0.2", true, Container{ID: 3, Capacity: 1000})

	containers := []int{1, 3, 2}
	status := []bool{true, true, true}
	groups := c.FindChunkGroups(containers, status)

	if len(groups["10.0.0.1"]) != 2 {
		t.Fatalf("expected 2 positions grouped under agent 1, got %v", groups["10.0.0.1"])
	}
	if len(groups["10.0.0.2"]) != 1 {
		t.Fatalf("expected 1 position grouped under agent 2, got %v", groups["10.0.0.2"])
	}
}

func TestFindChunkGroupsSkipsDeadPositions(t *testing.T) {
	c := newTestCoordinator(t)
	register(t, c, "10.0.0.1", true, Container{ID: 1, Capacity: 1000})

	groups := c.FindChunkGroups([]int{1}, []bool{false})
	if len(groups) != 0 {
		t.Fatalf("expected no groups for a dead position, got %v", groups)
	}
}

func TestNumAliveAgentsAndContainers(t *testing.T) {
	c := newTestCoordinator(t)
	register(t, c, "10.0.0.1", true, Container{ID: 1, Capacity: 1000}, Container{ID: 2, Capacity: 1000})
	register(t, c, "10.0.0.2", true, Container{ID: 3, Capacity: 1000})

	if c.NumAliveAgents() != 2 {
		t.Fatalf("expected 2 alive agents, got %d", c.NumAliveAgents())
	}
	if c.NumAliveContainers() != 3 {
		t.Fatalf("expected 3 alive containers, got %d", c.NumAliveContainers())
	}

	c.SetAgentAlive("10.0.0.2", false)
	if c.NumAliveAgents() != 1 {
		t.Fatalf("expected 1 alive agent after taking one down, got %d", c.NumAliveAgents())
	}
	if c.NumAliveContainers() != 2 {
		t.Fatalf("expected 2 alive containers after taking one agent down, got %d", c.NumAliveContainers())
	}
}

func TestRegisterPresetAgents(t *testing.T) {
	c := newTestCoordinator(t)
	err := c.RegisterPresetAgents([]PresetAgent{
		{IP: "10.0.0.5", CoordPort: 12345, Near: true},
	})
	if err != nil {
		t.Fatal(err)
	}
	if c.NumAliveAgents() != 1 {
		t.Fatalf("expected preset agent to be alive, got %d", c.NumAliveAgents())
	}
}
