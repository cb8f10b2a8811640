package hostos

// AddressTranslator converts between the driver's notion of a physical
// address (what it programs into a descriptor) and a virtual pointer (what
// Go code actually dereferences). A real kernel's v2p/p2v pair walks page
// tables; there are none here, so the reference implementation is an
// identity mapping through a lookup table that the driver fills by
// calling Register on each page it hands to the card.
type AddressTranslator interface {
	V2P(p *Page) uintptr
	P2V(phys uintptr) *Page
}

// IdentityTranslator implements AddressTranslator over pages it is told
// about, matching the spec's "assume the host OS has mapped it
// one-to-one" note for both MMIO and DMA buffers.
type IdentityTranslator struct {
	byPhys map[uintptr]*Page
}

// NewIdentityTranslator builds an empty translator; pages are registered
// as they are allocated via Register.
func NewIdentityTranslator() *IdentityTranslator {
	return &IdentityTranslator{byPhys: make(map[uintptr]*Page)}
}

// Register records a page's physical address so P2V can find it again.
func (t *IdentityTranslator) Register(p *Page) {
	t.byPhys[p.Phys] = p
}

// Unregister drops a page's mapping once it has been freed.
func (t *IdentityTranslator) Unregister(p *Page) {
	delete(t.byPhys, p.Phys)
}

// V2P returns the page's synthetic physical address.
func (t *IdentityTranslator) V2P(p *Page) uintptr {
	return p.Phys
}

// P2V looks up the page registered under a physical address, or nil if
// none is registered there.
func (t *IdentityTranslator) P2V(phys uintptr) *Page {
	return t.byPhys[phys]
}
