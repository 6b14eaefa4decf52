package main

import (
	"net"
	"strconv"

	"github.com/nexoedge-go/proxy/agentproto"
	"github.com/nexoedge-go/proxy/config"
	"github.com/nexoedge-go/proxy/persist"
	"github.com/nexoedge-go/proxy/placement"
)

// coordinatorAddr picks the address this instance's agent-facing
// coordinator listener binds to: the proxyNN entry matching
// proxy.namespace_id, since the config surface (spec §6) has no other
// field naming "which configured proxy is this one" (DESIGN.md Open
// Question decision).
func coordinatorAddr(cfg *config.Config) (string, bool) {
	ep, ok := cfg.Proxy.Endpoints[int(cfg.Proxy.NamespaceID)]
	if !ok || ep.CoordPort == 0 {
		return "", false
	}
	return net.JoinHostPort(ep.IP, strconv.Itoa(ep.CoordPort)), true
}

// serveCoordinator accepts agent registration, update, and keepalive
// connections (spec §5 "coordinator listener + monitor (2 threads)",
// spec §6 "Proxy<->agent coordinator protocol").
func serveCoordinator(cfg *config.Config, place *placement.Coordinator, log *persist.Logger) error {
	addr, ok := coordinatorAddr(cfg)
	if !ok {
		log.Printf("serveCoordinator: no proxyNN entry for namespace %d, coordinator listener disabled", cfg.Proxy.NamespaceID)
		return nil
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	go func() {
		defer ln.Close()
		for {
			conn, err := ln.Accept()
			if err != nil {
				log.Printf("serveCoordinator: accept: %v", err)
				return
			}
			go handleCoordinatorConn(conn, place, log)
		}
	}()

	log.Printf("serveCoordinator: listening on %s", addr)
	return nil
}

func handleCoordinatorConn(conn net.Conn, place *placement.Coordinator, log *persist.Logger) {
	defer conn.Close()

	op, br, err := agentproto.ReadOpcode(conn)
	if err != nil {
		log.Printf("serveCoordinator: read opcode: %v", err)
		return
	}

	switch op {
	case agentproto.RegAgentReq:
		m, err := agentproto.DecodeRegisterAgent(br)
		if err != nil {
			log.Printf("serveCoordinator: decode register: %v", err)
			return
		}
		containers := make([]placement.Container, len(m.Containers))
		for i, c := range m.Containers {
			containers[i] = placement.Container{ID: int(c.ID), Type: c.Type, Usage: c.Usage, Capacity: c.Capacity}
		}
		result := agentproto.RegResult{Accepted: true}
		if err := place.RegisterAgent(m.Address, int(m.CoordPort), m.HostType, false, containers); err != nil {
			result = agentproto.RegResult{Accepted: false, Reason: err.Error()}
		}
		if err := agentproto.EncodeRegResult(conn, agentproto.RegAgentRep, result); err != nil {
			log.Printf("serveCoordinator: encode register reply: %v", err)
		}

	case agentproto.UpdAgentReq:
		m, err := agentproto.DecodeUpdateAgent(br)
		if err != nil {
			log.Printf("serveCoordinator: decode update: %v", err)
			return
		}
		for _, c := range m.Containers {
			place.UpdateContainerUsage(int(c.ID), c.Usage)
		}
		if err := agentproto.EncodeRegResult(conn, agentproto.UpdAgentRep, agentproto.RegResult{Accepted: true}); err != nil {
			log.Printf("serveCoordinator: encode update reply: %v", err)
		}

	case agentproto.SynPing:
		if err := agentproto.EncodePing(conn, agentproto.AckPing); err != nil {
			log.Printf("serveCoordinator: encode ack: %v", err)
		}

	default:
		log.Printf("serveCoordinator: unexpected opcode %s on agent-facing listener", op)
	}
}
