package placement

// FindSpareContainers selects want replacement container ids not already
// present and alive in existing, honoring capacity (constraint 2), the
// per-agent placement factor f (constraint 3), and the requested policy
// (constraint 4). n and k are the stripe's total/data chunk counts; fsize
// is the size in bytes of the chunk being placed.
//
// Grounded on _examples/original_source/src/proxy/coordinator.cc's
// find_spare (same four constraints, same near/far two-pool STATIC scan).
func (c *Coordinator) FindSpareContainers(existing []int, status []bool, want int, fsize int64, n, k, f int, policy Policy) ([]int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	excluded := make(map[int]bool, len(existing))
	for i, id := range existing {
		if i < len(status) && status[i] {
			excluded[id] = true
		}
	}

	perAgentLimit := -1
	if f > 0 {
		perAgentLimit = (n - k) / f
	}

	switch policy {
	case RoundRobin:
		return c.findSpareRoundRobin(excluded, want, fsize, k, perAgentLimit)
	case LeastUsed:
		return c.findSpareLeastUsed(excluded, want, fsize, k, perAgentLimit)
	default:
		return c.findSpareStatic(excluded, want, fsize, k, perAgentLimit)
	}
}

// required returns the storage this chunk consumes against a container's
// reported capacity, ⌈(fsize + 2k)/k⌉ per constraint 2. k here is the
// erasure k in the formula, not the caller's chunk size; callers with k<=0
// (unknown stripe shape) should pass k=1 to degrade to a flat fsize+2 bound.
func required(fsize int64, k int) uint64 {
	if k <= 0 {
		k = 1
	}
	num := fsize + 2*int64(k)
	v := num / int64(k)
	if num%int64(k) != 0 {
		v++
	}
	if v < 0 {
		v = 0
	}
	return uint64(v)
}

func fits(a *Agent, containerID int, need uint64, perAgentLimit, takenFromAgent int) bool {
	if perAgentLimit >= 0 && takenFromAgent >= perAgentLimit {
		return false
	}
	capacity := a.containerCapacity[containerID]
	usage := a.containerUsage[containerID]
	return usage+need <= capacity
}

func (c *Coordinator) findSpareStatic(excluded map[int]bool, want int, fsize int64, k, perAgentLimit int) ([]int, error) {
	var near, far []*Agent
	for _, a := range c.agents {
		if !a.Alive {
			continue
		}
		if a.Near {
			near = append(near, a)
		} else {
			far = append(far, a)
		}
	}

	selected := make([]int, 0, want)
	for _, pool := range [][]*Agent{near, far} {
		if len(selected) >= want {
			break
		}
		c.scanPool(pool, excluded, want, fsize, k, perAgentLimit, &selected)
	}
	if len(selected) < want {
		return nil, ErrInsufficientCapacity
	}
	return selected, nil
}

func (c *Coordinator) scanPool(pool []*Agent, excluded map[int]bool, want int, fsize int64, k, perAgentLimit int, selected *[]int) {
	need := required(fsize, k)
	for _, a := range pool {
		taken := 0
		for _, cid := range a.Containers {
			if len(*selected) >= want {
				return
			}
			if excluded[cid] {
				continue
			}
			if !fits(a, cid, need, perAgentLimit, taken) {
				continue
			}
			*selected = append(*selected, cid)
			taken++
		}
	}
}

func (c *Coordinator) findSpareRoundRobin(excluded map[int]bool, want int, fsize int64, k, perAgentLimit int) ([]int, error) {
	ips := make([]string, 0, len(c.agents))
	for ip, a := range c.agents {
		if a.Alive {
			ips = append(ips, ip)
		}
	}
	if len(ips) == 0 {
		return nil, ErrInsufficientCapacity
	}
	need := required(fsize, k)
	selected := make([]int, 0, want)

	start := c.startingAgentIdx % len(ips)
	for i := 0; i < len(ips) && len(selected) < want; i++ {
		a := c.agents[ips[(start+i)%len(ips)]]
		taken := 0
		cStart := a.startingContainerIdx
		for j := 0; j < len(a.Containers) && len(selected) < want; j++ {
			cid := a.Containers[(cStart+j)%len(a.Containers)]
			if excluded[cid] {
				continue
			}
			if !fits(a, cid, need, perAgentLimit, taken) {
				continue
			}
			selected = append(selected, cid)
			taken++
		}
		if len(a.Containers) > 0 {
			a.startingContainerIdx = (cStart + 1) % len(a.Containers)
		}
	}
	c.startingAgentIdx = (start + 1) % len(ips)

	if len(selected) < want {
		return nil, ErrInsufficientCapacity
	}
	return selected, nil
}

func (c *Coordinator) findSpareLeastUsed(excluded map[int]bool, want int, fsize int64, k, perAgentLimit int) ([]int, error) {
	need := required(fsize, k)
	selected := make([]int, 0, want)

	for _, a := range c.agents {
		if !a.Alive || len(selected) >= want {
			continue
		}
		ordered := append([]int(nil), a.Containers...)
		sortByUsageAsc(ordered, a.containerUsage)

		taken := 0
		for _, cid := range ordered {
			if len(selected) >= want {
				break
			}
			if excluded[cid] {
				continue
			}
			if !fits(a, cid, need, perAgentLimit, taken) {
				continue
			}
			selected = append(selected, cid)
			taken++
		}
	}
	if len(selected) < want {
		return nil, ErrInsufficientCapacity
	}
	return selected, nil
}

func sortByUsageAsc(ids []int, usage map[int]uint64) {
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && usage[ids[j-1]] > usage[ids[j]]; j-- {
			ids[j-1], ids[j] = ids[j], ids[j-1]
		}
	}
}
