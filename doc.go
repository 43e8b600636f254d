// Package jingle negotiates per-content media streams with a peer and
// tracks the file transfers flowing over them.
//
// The facade wires together the three layers of the module: session
// holds the signaling state machine (contents, dispatch tables,
// negotiation flags), file holds the transfer registry with progress
// tracking, throughput estimation and hash verification, and transport
// carries the candidate exchange for the underlying bytestream.
//
// The embedder owns the wire. It supplies a session.Sender for outbound
// signaling, feeds inbound actions through Deliver, and reports stream
// bytes through Progress. Everything above the wire, from offer
// construction to corrupted-download recovery, happens here.
//
// Basic sending flow:
//
//	fs, err := jingle.New(jingle.NewOptions())
//	fs.SetSender(mySender)
//	transfer, err := fs.SendFile("juliet@capulet.lit/balcony", "/tmp/scene.txt", "act two")
//	offer, err := fs.BuildOffer("juliet@capulet.lit/balcony")
//	// wrap offer in an iq and put it on the wire
//
// Receiving mirrors it: parse the peer's offer into a ReceiveRequest,
// call ApproveReceive, build the accept with BuildAccept. A completed
// receive is checked with VerifyReceived; a digest mismatch deletes the
// corrupted file and replaces the record for a full restart.
package jingle
