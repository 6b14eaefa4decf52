package placement

// FindChunkGroups returns, for each agent that owns at least one alive
// chunk position, the list of stripe positions (indices into containers)
// it serves. CAR repair uses this to decide which agent groups can
// partially encode a repair contribution locally before the proxy XORs
// the partial results together (spec §4.3 find_chunk_groups, §4.4.3 CAR
// optimization).
//
// Grounded on _examples/original_source/src/proxy/coordinator.cc's
// findChunkGroups, which walks the container list once and buckets each
// alive position under its owning agent's address.
func (c *Coordinator) FindChunkGroups(containers []int, status []bool) map[string][]int {
	c.mu.Lock()
	defer c.mu.Unlock()

	groups := make(map[string][]int)
	for pos, cid := range containers {
		if pos < len(status) && !status[pos] {
			continue
		}
		ip, ok := c.containerToAgent[cid]
		if !ok {
			continue
		}
		if a, ok := c.agents[ip]; !ok || !a.Alive {
			continue
		}
		groups[ip] = append(groups[ip], pos)
	}
	return groups
}

// NumAliveAgents reports how many registered agents are currently alive,
// used by the repair worker's quorum gate, which compares this agent
// count against k.
func (c *Coordinator) NumAliveAgents() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, a := range c.agents {
		if a.Alive {
			n++
		}
	}
	return n
}

// NumAliveContainers reports the total number of containers owned by
// alive agents.
func (c *Coordinator) NumAliveContainers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, a := range c.agents {
		if !a.Alive {
			continue
		}
		n += len(a.Containers)
	}
	return n
}
