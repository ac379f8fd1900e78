package net

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"sync"
	"time"

	ma "github.com/multiformats/go-multiaddr"
	manet "github.com/multiformats/go-multiaddr/net"
	"github.com/sirupsen/logrus"
	"github.com/ugorji/go/codec"
	"go.uber.org/multierr"
)

/*******************************************************************************
MOST OF THIS IS TAKEN FROM HASHICORP RAFT
*******************************************************************************/

const (
	rpcIdentify uint8 = iota
	rpcFindNode
	rpcGetRecord
	rpcPutRecord
	rpcRequest
)

const (
	bufSize = math.MaxUint16
)

var (
	// ErrTransportShutdown is returned when operations on a transport are
	// invoked after it's been terminated.
	ErrTransportShutdown = errors.New("transport shutdown")
)

// msgpackHandle is shared by every encoder and decoder of the transport.
var msgpackHandle = newMsgpackHandle()

func newMsgpackHandle() *codec.MsgpackHandle {
	h := &codec.MsgpackHandle{}
	h.WriteExt = true
	h.RawToString = true
	return h
}

/*
NetworkTransport provides a network based transport that can be
used to communicate with safenode on remote machines. It requires
an underlying stream layer to provide a stream abstraction, which can
be simple TCP, TLS, etc.

This transport is very simple and lightweight. Each RPC request is
framed by sending a byte that indicates the message type, followed
by the msgpack encoded request.

The response is an error string followed by the response object,
both are encoded using msgpack
*/
type NetworkTransport struct {
	logger *logrus.Entry

	connPool     map[string][]*netConn
	connPoolLock sync.Mutex
	maxPool      int

	consumeCh chan RPC

	listeners     []manet.Listener
	listenersLock sync.RWMutex

	shutdown     bool
	shutdownCh   chan struct{}
	shutdownLock sync.Mutex

	stream StreamLayer

	timeout time.Duration
}

type netConn struct {
	target string
	conn   net.Conn
	r      *bufio.Reader
	w      *bufio.Writer
	dec    *codec.Decoder
	enc    *codec.Encoder
}

// Release closes the underlying connection
func (n *netConn) Release() error {
	return n.conn.Close()
}

// NewNetworkTransport creates a new network transport with the given stream
// layer. The maxPool controls how many connections we will pool (per
// target). The timeout is used to apply I/O deadlines when the caller's
// context has none, and bounds how long an inbound RPC waits for its
// response.
func NewNetworkTransport(
	stream StreamLayer,
	maxPool int,
	timeout time.Duration,
	logger *logrus.Entry,
) *NetworkTransport {

	if logger == nil {
		log := logrus.New()
		log.Level = logrus.DebugLevel
		logger = logrus.NewEntry(log)
	}

	trans := &NetworkTransport{
		connPool:   make(map[string][]*netConn),
		consumeCh:  make(chan RPC),
		logger:     logger,
		maxPool:    maxPool,
		shutdownCh: make(chan struct{}),
		stream:     stream,
		timeout:    timeout,
	}

	return trans
}

// Close is used to stop the network transport.
func (n *NetworkTransport) Close() error {
	n.shutdownLock.Lock()
	defer n.shutdownLock.Unlock()

	if n.shutdown {
		return nil
	}

	close(n.shutdownCh)
	n.shutdown = true

	var err error

	n.listenersLock.Lock()
	for _, l := range n.listeners {
		err = multierr.Append(err, l.Close())
	}
	n.listeners = nil
	n.listenersLock.Unlock()

	n.connPoolLock.Lock()
	for target, conns := range n.connPool {
		for _, c := range conns {
			c.Release()
		}
		delete(n.connPool, target)
	}
	n.connPoolLock.Unlock()

	return err
}

// Consumer implements the Transport interface.
func (n *NetworkTransport) Consumer() <-chan RPC {
	return n.consumeCh
}

// Listeners implements the Transport interface.
func (n *NetworkTransport) Listeners() []ma.Multiaddr {
	n.listenersLock.RLock()
	defer n.listenersLock.RUnlock()

	res := make([]ma.Multiaddr, 0, len(n.listeners))
	for _, l := range n.listeners {
		res = append(res, l.Multiaddr())
	}
	return res
}

// IsShutdown is used to check if the transport is shutdown.
func (n *NetworkTransport) IsShutdown() bool {
	select {
	case <-n.shutdownCh:
		return true
	default:
		return false
	}
}

// getPooledConn is used to grab a pooled connection.
func (n *NetworkTransport) getPooledConn(target string) *netConn {
	n.connPoolLock.Lock()
	defer n.connPoolLock.Unlock()

	conns, ok := n.connPool[target]
	if !ok || len(conns) == 0 {
		return nil
	}

	var conn *netConn
	num := len(conns)
	conn, conns[num-1] = conns[num-1], nil
	n.connPool[target] = conns[:num-1]
	return conn
}

// getConn is used to get a connection from the pool.
func (n *NetworkTransport) getConn(ctx context.Context, target ma.Multiaddr) (*netConn, error) {
	key := target.String()

	// Check for a pooled conn
	if conn := n.getPooledConn(key); conn != nil {
		return conn, nil
	}

	// Dial a new connection
	conn, err := n.stream.Dial(ctx, target)
	if err != nil {
		return nil, err
	}

	// Wrap the conn
	netConn := &netConn{
		target: key,
		conn:   conn,
		r:      bufio.NewReaderSize(conn, bufSize),
		w:      bufio.NewWriterSize(conn, bufSize),
	}
	// Setup encoder/decoders
	netConn.dec = codec.NewDecoder(netConn.r, msgpackHandle)
	netConn.enc = codec.NewEncoder(netConn.w, msgpackHandle)

	// Done
	return netConn, nil
}

// returnConn returns a connection back to the pool.
func (n *NetworkTransport) returnConn(conn *netConn) {
	n.connPoolLock.Lock()
	defer n.connPoolLock.Unlock()

	key := conn.target
	conns := n.connPool[key]

	if !n.IsShutdown() && len(conns) < n.maxPool {
		n.connPool[key] = append(conns, conn)
	} else {
		conn.Release()
	}
}

// Identify implements the Transport interface.
func (n *NetworkTransport) Identify(ctx context.Context, target ma.Multiaddr, args *IdentifyRequest, resp *IdentifyResponse) error {
	return n.genericRPC(ctx, target, rpcIdentify, args, resp)
}

// FindNode implements the Transport interface.
func (n *NetworkTransport) FindNode(ctx context.Context, target ma.Multiaddr, args *FindNodeRequest, resp *FindNodeResponse) error {
	return n.genericRPC(ctx, target, rpcFindNode, args, resp)
}

// GetRecord implements the Transport interface.
func (n *NetworkTransport) GetRecord(ctx context.Context, target ma.Multiaddr, args *GetRecordRequest, resp *GetRecordResponse) error {
	return n.genericRPC(ctx, target, rpcGetRecord, args, resp)
}

// PutRecord implements the Transport interface.
func (n *NetworkTransport) PutRecord(ctx context.Context, target ma.Multiaddr, args *PutRecordRequest, resp *PutRecordResponse) error {
	return n.genericRPC(ctx, target, rpcPutRecord, args, resp)
}

// Request implements the Transport interface.
func (n *NetworkTransport) Request(ctx context.Context, target ma.Multiaddr, args *AppRequest, resp *AppResponse) error {
	return n.genericRPC(ctx, target, rpcRequest, args, resp)
}

// genericRPC handles a simple request/response RPC.
func (n *NetworkTransport) genericRPC(ctx context.Context, target ma.Multiaddr, rpcType uint8, args interface{}, resp interface{}) error {
	if n.IsShutdown() {
		return ErrTransportShutdown
	}

	// Get a conn
	conn, err := n.getConn(ctx, target)
	if err != nil {
		return err
	}

	// Set a deadline
	if deadline, ok := ctx.Deadline(); ok {
		conn.conn.SetDeadline(deadline)
	} else if n.timeout > 0 {
		conn.conn.SetDeadline(time.Now().Add(n.timeout))
	}

	// Send the RPC
	if err = sendRPC(conn, rpcType, args); err != nil {
		return err
	}

	// Decode the response
	canReturn, err := decodeResponse(conn, resp)
	if canReturn {
		conn.conn.SetDeadline(time.Time{})
		n.returnConn(conn)
	}

	return err
}

// sendRPC is used to encode and send the RPC.
func sendRPC(conn *netConn, rpcType uint8, args interface{}) error {
	// Write the request type
	if err := conn.w.WriteByte(rpcType); err != nil {
		conn.Release()
		return err
	}

	// Send the request
	if err := conn.enc.Encode(args); err != nil {
		conn.Release()
		return err
	}

	// Flush
	if err := conn.w.Flush(); err != nil {
		conn.Release()
		return err
	}
	return nil
}

// decodeResponse is used to decode an RPC response and reports whether
// the connection can be reused.
func decodeResponse(conn *netConn, resp interface{}) (bool, error) {
	// Decode the error if any
	var rpcError string
	if err := conn.dec.Decode(&rpcError); err != nil {
		conn.Release()
		return false, err
	}

	// Decode the response
	if err := conn.dec.Decode(resp); err != nil {
		conn.Release()
		return false, err
	}

	// Format an error if any
	if rpcError != "" {
		return true, errors.New(rpcError)
	}
	return true, nil
}

// Listen implements the Transport interface. It binds a new listener and
// handles its incoming connections in the background.
func (n *NetworkTransport) Listen(addr ma.Multiaddr) (ma.Multiaddr, error) {
	if n.IsShutdown() {
		return nil, ErrTransportShutdown
	}

	list, err := n.stream.Listen(addr)
	if err != nil {
		return nil, err
	}

	n.listenersLock.Lock()
	n.listeners = append(n.listeners, list)
	n.listenersLock.Unlock()

	go n.acceptLoop(list)

	return list.Multiaddr(), nil
}

// acceptLoop handles incoming connections until the listener is closed.
func (n *NetworkTransport) acceptLoop(list manet.Listener) {
	for {
		// Accept incoming connections
		conn, err := list.Accept()
		if err != nil {
			if n.IsShutdown() {
				return
			}
			n.logger.WithField("error", err).Error("Failed to accept connection")
			if errors.Is(err, net.ErrClosed) {
				return
			}
			continue
		}
		n.logger.WithFields(logrus.Fields{
			"node": conn.LocalMultiaddr(),
			"from": conn.RemoteMultiaddr(),
		}).Debug("accepted connection")

		// Handle the connection in dedicated routine
		go n.handleConn(conn)
	}
}

// handleConn is used to handle an inbound connection for its lifespan.
func (n *NetworkTransport) handleConn(conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReaderSize(conn, bufSize)
	w := bufio.NewWriterSize(conn, bufSize)
	dec := codec.NewDecoder(r, msgpackHandle)
	enc := codec.NewEncoder(w, msgpackHandle)

	for {
		if err := n.handleCommand(r, dec, enc); err != nil {

			if err == ErrTransportShutdown {
				n.logger.WithField("error", err).Warn("Failed to decode incoming command")
			} else {
				if err != io.EOF {
					n.logger.WithField("error", err).Error("Failed to decode incoming command")
				}
			}
			return
		}
		if err := w.Flush(); err != nil {
			n.logger.WithField("error", err).Error("Failed to flush response")
			return
		}
	}
}

// handleCommand is used to decode and dispatch a single command.
func (n *NetworkTransport) handleCommand(r *bufio.Reader, dec *codec.Decoder, enc *codec.Encoder) error {
	// Get the rpc type
	rpcType, err := r.ReadByte()
	if err != nil {
		return err
	}

	// Decode the command
	var command interface{}
	switch rpcType {
	case rpcIdentify:
		var req IdentifyRequest
		if err := dec.Decode(&req); err != nil {
			return err
		}
		command = &req
	case rpcFindNode:
		var req FindNodeRequest
		if err := dec.Decode(&req); err != nil {
			return err
		}
		command = &req
	case rpcGetRecord:
		var req GetRecordRequest
		if err := dec.Decode(&req); err != nil {
			return err
		}
		command = &req
	case rpcPutRecord:
		var req PutRecordRequest
		if err := dec.Decode(&req); err != nil {
			return err
		}
		command = &req
	case rpcRequest:
		var req AppRequest
		if err := dec.Decode(&req); err != nil {
			return err
		}
		command = &req
	default:
		return fmt.Errorf("unknown rpc type %d", rpcType)
	}

	// Create the RPC object
	done := make(chan struct{})
	defer close(done)
	rpc, respCh := NewRPC(command, done)

	// Dispatch the RPC
	select {
	case n.consumeCh <- rpc:
	case <-n.shutdownCh:
		return ErrTransportShutdown
	}

	var timeout <-chan time.Time
	if n.timeout > 0 {
		timer := time.NewTimer(n.timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	// Wait for response
	select {
	case resp := <-respCh:
		// Send the error first
		respErr := ""
		if resp.Error != nil {
			respErr = resp.Error.Error()
		}
		if err := enc.Encode(respErr); err != nil {
			return err
		}

		// Send the response
		if err := enc.Encode(resp.Response); err != nil {
			return err
		}
	case <-timeout:
		return fmt.Errorf("no response to rpc type %d within %v", rpcType, n.timeout)
	case <-n.shutdownCh:
		return ErrTransportShutdown
	}

	return nil
}
