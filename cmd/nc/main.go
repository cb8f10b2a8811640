// Command nc is a minimal UDP netcat for the kernel network stack,
// built as a cobra CLI in place of the original's hand-rolled argv
// parsing. With -c it connects and forwards stdin line by line; with -s
// it opens the same way but prints whatever datagrams arrive instead of
// sending anything, since this stack has no passive listening socket
// distinct from an open connection.
package main

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"strconv"

	"github.com/miekg/dns"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"netkern/pkg/e1000"
	nksyscall "netkern/pkg/syscall"
	"netkern/pkg/stack"
)

var (
	flagConnect bool
	flagServe   bool
	flagResolve string
	flagVerbose bool
)

func main() {
	root := &cobra.Command{
		Use:   "nc <address> <port>",
		Short: "send or receive UDP datagrams over the kernel network stack",
		Args:  cobra.ExactArgs(2),
		RunE:  run,
	}
	root.Flags().BoolVarP(&flagConnect, "connect", "c", false, "connect and forward stdin")
	root.Flags().BoolVarP(&flagServe, "serve", "s", false, "open and print received datagrams")
	root.Flags().StringVar(&flagResolve, "resolve", "", "DNS server to resolve a hostname destination against (e.g. 8.8.8.8:53)")
	root.Flags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	log := logrus.New()
	if flagVerbose {
		log.SetLevel(logrus.DebugLevel)
	}

	addrArg, portArg := args[0], args[1]
	port, err := strconv.ParseUint(portArg, 10, 16)
	if err != nil {
		return fmt.Errorf("invalid port %q: %w", portArg, err)
	}

	addr, err := resolveAddr(addrArg, log)
	if err != nil {
		return err
	}

	bus, err := e1000.NewSimBus([6]byte{0x52, 0x54, 0x00, 0x00, 0x00, 0x01})
	if err != nil {
		return fmt.Errorf("failed to bring up simulated hardware: %w", err)
	}
	defer bus.Close()

	ns, err := stack.Boot(bus, logrus.NewEntry(log))
	if err != nil {
		return fmt.Errorf("failed to boot network stack: %w", err)
	}

	fd, err := nksyscall.Netopen(ns, addr, uint16(port), 0)
	if err != nil {
		log.WithError(err).Error("netopen failed")
		os.Exit(1)
	}
	defer nksyscall.Netclose(ns, fd)

	if flagServe {
		return serve(ns, fd, log)
	}
	return forwardStdin(ns, fd, log)
}

// resolveAddr returns addrArg parsed as a dotted-quad IPv4 address, or,
// when --resolve names a DNS server and addrArg isn't already an IP,
// looks it up with miekg/dns first. The core stack itself never sees
// anything but a literal IPv4 address, per its non-goals.
func resolveAddr(addrArg string, log *logrus.Logger) (net.IP, error) {
	if ip := net.ParseIP(addrArg); ip != nil {
		return ip.To4(), nil
	}
	if flagResolve == "" {
		return nil, fmt.Errorf("%q is not a dotted-quad IPv4 address (pass --resolve to look up hostnames)", addrArg)
	}

	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(addrArg), dns.TypeA)

	client := new(dns.Client)
	resp, _, err := client.Exchange(msg, flagResolve)
	if err != nil {
		return nil, fmt.Errorf("dns lookup of %s failed: %w", addrArg, err)
	}
	for _, ans := range resp.Answer {
		if a, ok := ans.(*dns.A); ok {
			log.WithFields(logrus.Fields{"host": addrArg, "addr": a.A.String()}).Debug("resolved hostname")
			return a.A.To4(), nil
		}
	}
	return nil, fmt.Errorf("no A record found for %s", addrArg)
}

func forwardStdin(ns *stack.NetStack, fd int, log *logrus.Logger) error {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := append(scanner.Bytes(), '\n')
		if _, err := nksyscall.Netwrite(ns, fd, line); err != nil {
			return fmt.Errorf("netwrite failed: %w", err)
		}
	}
	return scanner.Err()
}

func serve(ns *stack.NetStack, fd int, log *logrus.Logger) error {
	buf := make([]byte, 4096)
	for {
		n, err := nksyscall.Netread(ns, fd, buf)
		if err != nil {
			return fmt.Errorf("netread failed: %w", err)
		}
		os.Stdout.Write(buf[:n])
	}
}
