// Package mqtt311 implements an MQTT 3.1.1 client.
//
// The package is built around a small set of composable parts: a
// wildcard-aware topic trie that routes incoming publishes to
// per-subscription handlers, a request correlator that matches
// acknowledgement packets to in-flight operations, and a connection
// state machine that distinguishes the first connect from reconnects
// after a network interruption.
//
// A minimal session looks like:
//
//	client, err := mqtt311.NewClient(
//		mqtt311.WithServer("tcp://broker.example.com:1883"),
//		mqtt311.WithClientID("sensor-42"),
//	)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	if err := client.Connect(ctx).Wait(ctx); err != nil {
//		log.Fatal(err)
//	}
//
//	client.Subscribe("sensors/+/temp", mqtt311.QoS1, func(msg *mqtt311.Message) {
//		fmt.Println(msg.Topic, string(msg.Payload))
//	})
//
// Operations that wait for a broker acknowledgement (publish at QoS 1 or
// 2, subscribe, unsubscribe) return a Token immediately and never block
// the caller on network I/O.
package mqtt311
