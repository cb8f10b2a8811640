// Package e1000 drives an emulated Intel 82540EM ("E1000") gigabit
// Ethernet controller: PCI discovery, MMIO register access, RX/TX
// descriptor rings, and interrupt-driven reception. It talks to the card
// exclusively through the Bus interface, so tests and demos can supply a
// simulated bus instead of real hardware.
package e1000
