package framing_test

import (
	"bytes"
	"net"
	"testing"
	"time"

	"github.com/ha1tch/tdsdriver/framing"
	"github.com/ha1tch/tdsdriver/wire"
)

func TestFramerSendMessageSinglePacket(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	sender := framing.NewFramer(client, wire.DefaultPacketSize)
	defer sender.Close()
	receiver := framing.NewFramer(server, wire.DefaultPacketSize)
	defer receiver.Close()

	payload := []byte("select 1")
	go func() {
		if err := sender.SendMessage(wire.PacketSQLBatch, payload); err != nil {
			t.Errorf("SendMessage: %v", err)
		}
	}()

	select {
	case ev := <-receiver.Events():
		if ev.Type != framing.EventMessage {
			t.Fatalf("expected EventMessage for a payload under one packet, got %v", ev.Type)
		}
		if !bytes.Equal(ev.Payload, payload) {
			t.Fatalf("payload: got %q, want %q", ev.Payload, payload)
		}
		if ev.PktType != wire.PacketSQLBatch {
			t.Fatalf("PktType: got %v, want %v", ev.PktType, wire.PacketSQLBatch)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the message event")
	}
}

func TestFramerSendMessageChunksAcrossPacketBoundary(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	const packetSize = wire.MinPacketSize
	sender := framing.NewFramer(client, packetSize)
	defer sender.Close()
	receiver := framing.NewFramer(server, packetSize)
	defer receiver.Close()

	maxPayload := packetSize - wire.HeaderSize
	payload := bytes.Repeat([]byte{'x'}, maxPayload*2+17)

	go func() {
		if err := sender.SendMessage(wire.PacketSQLBatch, payload); err != nil {
			t.Errorf("SendMessage: %v", err)
		}
	}()

	var reassembled []byte
	timeout := time.After(3 * time.Second)
	for {
		select {
		case ev := <-receiver.Events():
			reassembled = append(reassembled, ev.Payload...)
			if ev.Type == framing.EventMessage {
				if !bytes.Equal(reassembled, payload) {
					t.Fatalf("reassembled payload length %d, want %d", len(reassembled), len(payload))
				}
				return
			}
		case <-timeout:
			t.Fatal("timed out waiting for full message reassembly")
		}
	}
}

func TestFramerSetPacketSizeIgnoresOutOfRange(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	f := framing.NewFramer(client, wire.DefaultPacketSize)
	defer f.Close()
	receiver := framing.NewFramer(server, wire.DefaultPacketSize)
	defer receiver.Close()
	go func() {
		for range receiver.Events() {
		}
	}()

	f.SetPacketSize(1) // below MinPacketSize, must be ignored

	done := make(chan error, 1)
	go func() {
		done <- f.SendMessage(wire.PacketSQLBatch, []byte("x"))
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("SendMessage after an out-of-range SetPacketSize: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out sending after SetPacketSize(1)")
	}
}
