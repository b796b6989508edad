// Command atmsim is a manual ATM test client: it connects to a
// gateway instance, builds a 0200 financial request from a simple
// "PAN,Amount" prompt, and prints the decoded response.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/nxgw/atmgateway/iso8583"
)

var serverAddr = flag.String("server", "localhost:7790", "Gateway address")

func main() {
	flag.Parse()

	conn, err := net.Dial("tcp", *serverAddr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect to %s: %v\n", *serverAddr, err)
		os.Exit(1)
	}
	defer conn.Close()

	dict := iso8583.NewDictionary()
	codec := iso8583.NewWireCodec(dict)

	fmt.Println("Connected to gateway at", *serverAddr)
	fmt.Println("Enter transactions (PAN,Amount) or 'quit' to exit.")
	fmt.Println("Example: 4123456789012,500.00")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "quit" || input == "exit" {
			break
		}
		if input == "" {
			continue
		}

		parts := strings.SplitN(input, ",", 2)
		if len(parts) != 2 {
			fmt.Println("expected PAN,Amount")
			continue
		}

		if err := sendWithdrawal(conn, codec, dict, parts[0], parts[1]); err != nil {
			fmt.Fprintf(os.Stderr, "transaction failed: %v\n", err)
		}
	}
}

// sendWithdrawal builds a 0200 withdrawal request with the PAN and
// major-unit amount entered at the prompt, sends it, and prints the
// decoded response.
func sendWithdrawal(conn net.Conn, codec *iso8583.WireCodec, dict *iso8583.Dictionary, pan, amountMajor string) error {
	table, ok := dict.Table("0200")
	if !ok {
		return fmt.Errorf("no dictionary entry for MTI 0200")
	}

	amount, err := strconv.ParseFloat(strings.TrimSpace(amountMajor), 64)
	if err != nil {
		return fmt.Errorf("invalid amount %q: %w", amountMajor, err)
	}
	amountMinor := int64(amount*100 + 0.5)

	now := time.Now()
	req := iso8583.NewMessage("0200", table)
	req.SetString(2, strings.TrimSpace(pan))
	req.SetString(3, "010000")
	req.SetString(4, fmt.Sprintf("%012d", amountMinor))
	req.SetString(7, now.Format("0102150405"))
	req.SetString(11, fmt.Sprintf("%06d", now.Unix()%1000000))
	req.SetString(41, "ATM00001")
	req.SetString(49, "800")

	encoded, err := codec.Encode(req)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	start := time.Now()
	if _, err := conn.Write(encoded); err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}

	payload, err := codec.ReadFrame(conn)
	if err != nil {
		return fmt.Errorf("failed to read response frame: %w", err)
	}
	resp, err := codec.Decode(payload)
	if err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	fmt.Printf("transaction completed in %s\n", time.Since(start))
	printResponse(resp)
	return nil
}

func printResponse(resp *iso8583.IsoMessage) {
	fmt.Println("=== Gateway Response ===")
	fmt.Printf("MTI: %s\n", resp.MTI)

	fields := []struct {
		number int
		name   string
	}{
		{37, "RRN"},
		{38, "Auth Code"},
		{39, "Response Code"},
		{44, "Additional Data"},
		{54, "Balances"},
	}
	for _, f := range fields {
		if v := resp.GetString(f.number); v != "" {
			fmt.Printf("%s: %s\n", f.name, v)
		}
	}
	fmt.Println("========================")
}
