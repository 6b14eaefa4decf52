package main

import (
	"bufio"
	"io"
	"net"

	"github.com/nexoedge-go/proxy/config"
	"github.com/nexoedge-go/proxy/persist"
	"github.com/nexoedge-go/proxy/proxy"
	"github.com/nexoedge-go/proxy/wire"
)

// serve binds the client-facing listener spec §6 describes (one
// connection per request/reply exchange, length-prefixed frames) and
// dispatches accepted connections to handleConn in their own goroutine.
// The accept loop itself runs in the background; a bind error is
// reported synchronously so startCmd can exit non-zero per spec §6.
func serve(cfg *config.Config, px *proxy.Proxy, log *persist.Logger) error {
	ln, err := net.Listen("tcp", cfg.Proxy.Interface)
	if err != nil {
		return err
	}

	go func() {
		defer ln.Close()
		for {
			conn, err := ln.Accept()
			if err != nil {
				log.Printf("serve: accept: %v", err)
				return
			}
			go handleConn(conn, px, log)
		}
	}()

	log.Printf("serve: listening on %s", cfg.Proxy.Interface)
	return nil
}

// handleConn decodes one request, dispatches it, and writes exactly one
// reply before closing the connection (spec §6: "a connection carries
// one request/reply exchange").
func handleConn(conn net.Conn, px *proxy.Proxy, log *persist.Logger) {
	defer conn.Close()

	br := bufio.NewReader(conn)
	req, err := wire.DecodeRequest(br)
	if err != nil {
		if err != io.EOF {
			log.Printf("serve: decode request: %v", err)
		}
		return
	}

	reply, failErr := dispatch(req, px)
	if failErr != nil {
		log.Printf("serve: %s failed: %v", req.Opcode, failErr)
		if err := wire.EncodeReply(conn, req.Opcode, nil); err != nil {
			log.Printf("serve: encode fail reply: %v", err)
		}
		return
	}
	if err := wire.EncodeReply(conn, req.Opcode, reply); err != nil {
		log.Printf("serve: encode reply: %v", err)
	}
}
