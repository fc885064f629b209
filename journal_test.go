package sparse_test

import (
	"io"

	"github.com/bsm/sparse"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"github.com/pkg/errors"
)

var _ = Describe("Journal", func() {
	var store *sparse.MemAppender

	BeforeEach(func() {
		store = &sparse.MemAppender{}
	})

	record := func(j *sparse.Journal, exts ...sparse.Extent) {
		for _, e := range exts {
			_, err := store.Append(j.Encode(nil, e))
			Expect(err).NotTo(HaveOccurred())
		}
	}

	It("should replay empty journals", func() {
		x := sparse.New()
		j, n, err := sparse.ReplayJournal(store, x)
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(0))
		Expect(j.Last()).To(Equal(sparse.Extent{}))
		Expect(x.Len()).To(Equal(0))
	})

	It("should encode deltas", func() {
		j := new(sparse.Journal)
		Expect(j.Encode(nil, sparse.Extent{5, 0, 3})).To(Equal([]byte{10, 0, 6}))
		Expect(j.Encode(nil, sparse.Extent{2, 3, 3})).To(Equal([]byte{5, 3, 0}))
		Expect(j.Last()).To(Equal(sparse.Extent{2, 3, 3}))
	})

	It("should replay", func() {
		record(new(sparse.Journal),
			sparse.Extent{5, 0, 3},
			sparse.Extent{2, 3, 3},
			sparse.Extent{100, 6, 10},
		)

		x := sparse.New()
		j, n, err := sparse.ReplayJournal(store, x)
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(3))
		Expect(j.Last()).To(Equal(sparse.Extent{100, 6, 10}))
		Expect(x.Extents()).To(Equal([]sparse.Extent{
			{2, 3, 3},
			{5, 0, 3},
			{100, 6, 10},
		}))

		// continue the journal after replay
		record(j, sparse.Extent{110, 16, 4})
		y := sparse.New()
		_, n, err = sparse.ReplayJournal(store, y)
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(4))
		Expect(y.Extents()).To(Equal([]sparse.Extent{
			{2, 3, 3},
			{5, 0, 3},
			{100, 6, 14},
		}))
	})

	It("should fail on truncated records", func() {
		record(new(sparse.Journal), sparse.Extent{5, 0, 3}, sparse.Extent{300, 3, 3})
		truncated := (*store)[:len(*store)-1]

		_, n, err := sparse.ReplayJournal(&truncated, sparse.New())
		Expect(n).To(Equal(1))
		Expect(errors.Cause(err)).To(Equal(io.ErrUnexpectedEOF))
	})

	It("should fail on bad records", func() {
		record(new(sparse.Journal), sparse.Extent{5, 0, 3}, sparse.Extent{8, 3, 0})

		_, n, err := sparse.ReplayJournal(store, sparse.New())
		Expect(n).To(Equal(1))
		Expect(errors.Cause(err)).To(Equal(sparse.ErrBadLength))
	})
})
