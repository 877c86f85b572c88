// Package node implements a single-threaded, epoll-driven TCP broadcast
// server. Every line a client sends is fanned out to all other connected
// clients. One goroutine owns the epoll instance, all connections and all
// per-connection tasks; connection state therefore needs no locking.
package node
