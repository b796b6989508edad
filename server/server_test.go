package server

import (
	"context"
	"encoding/binary"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/nxgw/atmgateway/charge"
	"github.com/nxgw/atmgateway/config"
	"github.com/nxgw/atmgateway/esb"
	"github.com/nxgw/atmgateway/iso8583"
	"github.com/nxgw/atmgateway/processor"
)

func startTestServer(t *testing.T) (addr string, shutdown func()) {
	t.Helper()

	esbSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"responseCode":"00","authorizationCode":"AUTH01","transactionId":"RRN000000001"}`))
	}))

	cfg := config.EsbConfig{
		BaseURL:    esbSrv.URL,
		Withdrawal: "/withdraw",
	}
	esbClient := esb.NewClient(cfg, 2*time.Second, nil)

	dict := iso8583.NewDictionary()
	codec := iso8583.NewWireCodec(dict)
	chargeEngine := charge.NewEngine(charge.DefaultConfig())
	proc := processor.New(dict, chargeEngine, esbClient, nil)

	srv := New(Config{Threads: 4, SocketTimeoutMs: 5000}, codec, dict, proc, nil)

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr = lis.Addr().String()
	srv.listener = lis

	go func() {
		for {
			conn, err := lis.Accept()
			if err != nil {
				return
			}
			srv.wg.Add(1)
			go srv.serve(conn)
		}
	}()

	shutdown = func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
		esbSrv.Close()
	}
	return addr, shutdown
}

func writeFrame(conn net.Conn, payload []byte) error {
	header := make([]byte, 2)
	binary.BigEndian.PutUint16(header, uint16(len(payload)))
	_, err := conn.Write(append(header, payload...))
	return err
}

func readFrame(conn net.Conn) ([]byte, error) {
	var header [2]byte
	if _, err := io.ReadFull(conn, header[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint16(header[:])
	payload := make([]byte, n)
	_, err := io.ReadFull(conn, payload)
	return payload, err
}

func TestServerRoundTripWithdrawal(t *testing.T) {
	addr, shutdown := startTestServer(t)
	defer shutdown()

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	dict := iso8583.NewDictionary()
	codec := iso8583.NewWireCodec(dict)
	table, _ := dict.Table("0200")

	request := iso8583.NewMessage("0200", table)
	request.SetString(2, "4123456789012")
	request.SetString(3, "010000")
	request.SetString(4, "000000050000")
	request.SetString(7, "0101120000")
	request.SetString(11, "000001")
	request.SetString(41, "ATM00001")
	request.SetString(49, "800")

	payload, err := codec.Encode(request)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	// Encode already includes the length prefix.
	if _, err := conn.Write(payload); err != nil {
		t.Fatalf("write: %v", err)
	}

	respPayload, err := readFrame(conn)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}

	response, err := codec.Decode(respPayload)
	if err != nil {
		t.Fatalf("decode response: %v", err)
	}

	if response.MTI != "0210" {
		t.Errorf("MTI = %q, want 0210", response.MTI)
	}
	if got := response.GetString(39); got != "00" {
		t.Errorf("field 39 = %q, want 00", got)
	}
	if got := response.GetString(38); got != "AUTH01" {
		t.Errorf("field 38 = %q, want AUTH01", got)
	}
}

func TestServerMalformedFrameYieldsParseError(t *testing.T) {
	addr, shutdown := startTestServer(t)
	defer shutdown()

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// A frame too short to contain even an MTI.
	if err := writeFrame(conn, []byte("ab")); err != nil {
		t.Fatalf("write: %v", err)
	}

	respPayload, err := readFrame(conn)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}

	dict := iso8583.NewDictionary()
	codec := iso8583.NewWireCodec(dict)
	response, err := codec.Decode(respPayload)
	if err != nil {
		t.Fatalf("decode response: %v", err)
	}

	if response.MTI != "0210" {
		t.Errorf("MTI = %q, want 0210", response.MTI)
	}
	if got := response.GetString(39); got != "30" {
		t.Errorf("field 39 = %q, want 30", got)
	}
}

func TestServerShutdownClosesListener(t *testing.T) {
	addr, shutdown := startTestServer(t)

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	shutdown()

	// A second dial attempt should fail once the listener is closed.
	if _, err := net.DialTimeout("tcp", addr, 200*time.Millisecond); err == nil {
		t.Error("expected dial to fail after shutdown")
	}
}
