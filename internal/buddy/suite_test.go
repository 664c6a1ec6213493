package buddy

import (
	"testing"

	. "gopkg.in/check.v1"
)

// Test hooks gocheck into go test, the same way every canonical-snapd
// package does: a single Test(t *testing.T) entry point, then suites
// registered with Suite(&...{}).
func Test(t *testing.T) { TestingT(t) }

type scenarioSuite struct {
	a *Allocator
}

var _ = Suite(&scenarioSuite{})

func (s *scenarioSuite) SetUpTest(c *C) {
	a, err := New(1024)
	c.Assert(err, IsNil)
	s.a = a
}

func (s *scenarioSuite) TearDownTest(c *C) {
	c.Assert(s.a.Close(), IsNil)
}

// spec.md §8.1: after any balanced sequence of alloc/free, used_pages == 0
// and the allocator's arena bytes remain independently writable/readable
// through Arena() at the addresses handed out.
func (s *scenarioSuite) TestArenaRoundTripsBytes(c *C) {
	phys, ok := s.a.AllocPage()
	c.Assert(ok, Equals, true)

	arena := s.a.Arena()
	copy(arena[phys:phys+8], []byte("deadbeef"))
	c.Assert(string(arena[phys:phys+8]), Equals, "deadbeef")

	c.Assert(s.a.FreePage(phys), IsNil)
	c.Assert(s.a.UsedPages(), Equals, uint32(0))
}

func (s *scenarioSuite) TestManyAllocsStayDisjoint(c *C) {
	seen := map[uint64]bool{}
	for i := 0; i < 200; i++ {
		p, ok := s.a.AllocPage()
		c.Assert(ok, Equals, true)
		c.Assert(seen[p], Equals, false)
		seen[p] = true
	}
	c.Assert(s.a.UsedPages(), Equals, uint32(200))
}
