// Package tickstore is a synchronous client for the append-only tick-store
// server: a line-oriented, newline-terminated TCP protocol used to create
// per-symbol databases and append delta records.
package tickstore

import (
	"bufio"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/epic1st/dtfeed/delta"
	"github.com/epic1st/dtfeed/logging"
)

// DefaultAddr is the tick store's default listen address.
const DefaultAddr = "127.0.0.1:9001"

// BulkTerminator is the literal token that ends a BULKADD block. The server
// expects it exactly; there is no alternate framing.
const BulkTerminator = "DDAKLUB"

const dialTimeout = 1 * time.Second

// DatabaseName renders the tick store's logical database name for one
// exchange/symbol pair, e.g. "gdax_BTC-USD".
func DatabaseName(exchange, symbol string) string {
	return exchange + "_" + symbol
}

// Client is a single-owner, text-framed connection to the tick store. A
// Client is not safe for concurrent use; share it across goroutines by
// calling Clone, which dups the underlying socket into an independent
// session.
type Client struct {
	conn   net.Conn
	reader *bufio.Reader
}

// Dial opens a new connection with a 1-second connect timeout, per policy:
// the tick store's replies are small ASCII lines, but the connect itself
// must not hang indefinitely if the server is unreachable.
func Dial(addr string) (*Client, error) {
	conn, err := net.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		return nil, fmt.Errorf("tickstore: dial %s: %w", addr, err)
	}
	return &Client{conn: conn, reader: bufio.NewReader(conn)}, nil
}

// Clone duplicates the underlying socket so a second goroutine — e.g. a
// persistence worker running alongside a feed adapter — can hold an
// independent session without racing this Client's buffered reader.
func (c *Client) Clone() (*Client, error) {
	tcpConn, ok := c.conn.(*net.TCPConn)
	if !ok {
		return nil, fmt.Errorf("tickstore: clone: underlying connection is not TCP")
	}

	f, err := tcpConn.File()
	if err != nil {
		return nil, fmt.Errorf("tickstore: clone: %w", err)
	}
	defer f.Close()

	dup, err := net.FileConn(f)
	if err != nil {
		return nil, fmt.Errorf("tickstore: clone: %w", err)
	}
	return &Client{conn: dup, reader: bufio.NewReader(dup)}, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// writeLine writes one command line, retrying on short writes — a partial
// write must not silently truncate a command.
func (c *Client) writeLine(line string) error {
	buf := []byte(line)
	if !strings.HasSuffix(line, "\n") {
		buf = append(buf, '\n')
	}
	for len(buf) > 0 {
		n, err := c.conn.Write(buf)
		if err != nil {
			return fmt.Errorf("tickstore: write: %w", err)
		}
		buf = buf[n:]
	}
	return nil
}

// readLine reads one newline-terminated reply. An earlier client read into
// a fixed, empty buffer and discarded every reply; this always reads to the
// delimiter instead.
func (c *Client) readLine() (string, error) {
	line, err := c.reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("tickstore: read: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (c *Client) command(line string) (string, error) {
	if err := c.writeLine(line); err != nil {
		return "", err
	}
	return c.readLine()
}

// Ping issues PING.
func (c *Client) Ping() (string, error) { return c.command("PING") }

// Help issues HELP.
func (c *Client) Help() (string, error) { return c.command("HELP") }

// Info issues INFO.
func (c *Client) Info() (string, error) { return c.command("INFO") }

// Perf issues PERF.
func (c *Client) Perf() (string, error) { return c.command("PERF") }

// Exists reports whether db exists. A transport error or an unparseable
// reply is treated as "does not exist" and logged, so the caller falls
// through to Create.
func (c *Client) Exists(db string) bool {
	reply, err := c.command(fmt.Sprintf("EXISTS %s", db))
	if err != nil {
		logging.Warn("tickstore: EXISTS failed, treating database as absent",
			logging.String("db", db), logging.String("error", err.Error()))
		return false
	}
	if parseExistsReply(reply) {
		return true
	}
	if f := strings.Fields(reply); len(f) == 0 || (f[len(f)-1] != "0" && !strings.EqualFold(f[len(f)-1], "false")) {
		logging.Warn("tickstore: unparseable EXISTS reply, treating database as absent",
			logging.String("db", db), logging.String("reply", reply))
	}
	return false
}

// parseExistsReply parses the server's documented reply envelope rather
// than trusting the first byte of the line, which breaks if the server
// prefixes status text ahead of the '1'/'0' token.
func parseExistsReply(reply string) bool {
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return false
	}
	fields := strings.Fields(reply)
	last := fields[len(fields)-1]
	return last == "1" || strings.EqualFold(last, "true")
}

// Create creates db.
func (c *Client) Create(db string) error {
	_, err := c.command(fmt.Sprintf("CREATE %s", db))
	return err
}

// EnsureDatabase creates db if Exists reports it does not already exist.
func (c *Client) EnsureDatabase(db string) error {
	if c.Exists(db) {
		return nil
	}
	return c.Create(db)
}

// recordLine renders a delta's tick-store record without its trailing
// newline, since the INSERT/BULKADD framing adds its own line terminators.
func recordLine(d delta.Delta) string {
	return strings.TrimSuffix(d.Record(), "\n")
}

// Insert appends one record. If db is empty the record goes to whichever
// database the connection last switched into.
func (c *Client) Insert(d delta.Delta, db string) error {
	line := "INSERT " + recordLine(d)
	if db != "" {
		line += fmt.Sprintf("; INTO %s", db)
	}
	_, err := c.command(line)
	return err
}

// BulkAdd appends many records to db in one round trip, terminated by the
// required DDAKLUB token.
func (c *Client) BulkAdd(deltas []delta.Delta, db string) error {
	header := "BULKADD"
	if db != "" {
		header += " INTO " + db
	}
	if err := c.writeLine(header); err != nil {
		return err
	}
	for _, d := range deltas {
		if err := c.writeLine(recordLine(d)); err != nil {
			return err
		}
	}
	if err := c.writeLine(BulkTerminator); err != nil {
		return err
	}
	_, err := c.readLine()
	return err
}

// Flush persists the current database's memtable to disk.
func (c *Client) Flush() error {
	_, err := c.command("FLUSH")
	return err
}

// FlushAll persists every database's memtable to disk.
func (c *Client) FlushAll() error {
	_, err := c.command("FLUSH ALL")
	return err
}

// Clear drops the current database's in-memory buffer.
func (c *Client) Clear() error {
	_, err := c.command("CLEAR")
	return err
}

// ClearAll drops every database's in-memory buffer.
func (c *Client) ClearAll() error {
	_, err := c.command("CLEAR ALL")
	return err
}

// Count returns the current database's row count, as reported by the
// server; the reply is returned verbatim rather than parsed, since the
// wire format for COUNT's numeric encoding isn't specified.
func (c *Client) Count() (string, error) { return c.command("COUNT") }

// CountAll returns every database's row count.
func (c *Client) CountAll() (string, error) { return c.command("COUNT ALL") }
