// Package uskit is the client side of an event-driven session protocol. A
// Session keeps one reconnecting link to a session address and turns inbound
// JSON frames into events on a synchronous, ordered router. Transaction
// clients send requests and relay their acks and nacks, query clients stream
// paged snapshots and live updates into row events, and an AuthProxy logs in
// through a transaction client and replays the last credential after every
// reconnect.
//
// A typical host wires the pieces bottom-up:
//
//	sess, _ := uskit.NewSession(ctx, cfg, logger, uskit.SessionDependencies{})
//	login := uskit.NewTxnClient(sess, "LOGIN")
//	proxy := uskit.NewAuthProxy(sess, login)
//	users := uskit.NewQueryClient(proxy, "QUERY_USER")
//	uskit.ConnectTable(users, uskit.NewMirror())
//	_ = sess.Open(ctx, "/uchat")
//
// Query clients layered on the proxy start on the proxy's derived open event,
// so they run again after every successful login.
//
// # Transports
//
// The link is chosen by Config.Transport. Importing this package registers:
//   - websocket: gorilla/websocket against Config.WebSocketURL (default)
//   - channel: in-memory Go channels for tests and local development
//   - nats: core NATS subjects
//   - rabbitmq: AMQP queues, one per dialer
//   - kafka: Kafka topics read from the newest offset
//   - http: webhook-style POSTs with a local listener
//   - aws: AWS SNS/SQS with LocalStack support
//
// Broker transports map an address such as "/uchat" onto a topic pair,
// "uchat.c2s" for client frames and "uchat.s2c" for server frames.
//
// # Observability
//
// Every component takes a ServiceLogger. Metrics are Prometheus collectors
// created with NewMetrics and served with MetricsHandler; sends are wrapped in
// OpenTelemetry producer spans.
package uskit
