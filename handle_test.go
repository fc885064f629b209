package sparse_test

import (
	"github.com/bsm/sparse"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("Registry", func() {
	var subject *sparse.Registry
	var handle sparse.Handle

	BeforeEach(func() {
		subject = sparse.NewRegistry()
		handle = subject.Create()
	})

	It("should create and destroy", func() {
		other := subject.Create()
		Expect(other).NotTo(Equal(handle))
		Expect(subject.Len()).To(Equal(2))

		Expect(subject.Destroy(handle)).To(Succeed())
		Expect(subject.Len()).To(Equal(1))
		Expect(subject.Destroy(handle)).To(MatchError(sparse.ErrBadHandle))

		Expect(subject.Write(handle, 0, 0, 1)).To(MatchError(sparse.ErrBadHandle))
		_, _, _, err := subject.Read(handle, 0)
		Expect(err).To(MatchError(sparse.ErrBadHandle))
		Expect(subject.CursorBegin(handle, make([]byte, sparse.CursorSize))).To(MatchError(sparse.ErrBadHandle))

		Expect(subject.Write(other, 0, 0, 1)).To(Succeed())
	})

	It("should read and write", func() {
		Expect(subject.Write(handle, 10, 50, 10)).To(Succeed())
		Expect(subject.Write(handle, 0, 0, 0)).To(MatchError(sparse.ErrBadLength))

		physical, sliceLength, gap, err := subject.Read(handle, 12)
		Expect(err).NotTo(HaveOccurred())
		Expect(physical).To(Equal(int64(52)))
		Expect(sliceLength).To(Equal(int64(8)))
		Expect(gap).To(Equal(sparse.NoNextExtent))

		_, sliceLength, gap, err = subject.Read(handle, 5)
		Expect(err).NotTo(HaveOccurred())
		Expect(sliceLength).To(Equal(int64(0)))
		Expect(gap).To(Equal(int64(5)))
	})

	Describe("cursors", func() {
		var cursor []byte

		BeforeEach(func() {
			cursor = make([]byte, subject.CursorSize())
			Expect(subject.Write(handle, 0, 100, 5)).To(Succeed())
			Expect(subject.Write(handle, 10, 200, 5)).To(Succeed())
			Expect(subject.Write(handle, 20, 300, 5)).To(Succeed())
		})

		It("should have a fixed size", func() {
			Expect(subject.CursorSize()).To(Equal(sparse.CursorSize))
			Expect(sparse.CursorSize).To(Equal(24))
		})

		It("should advance", func() {
			Expect(subject.CursorBegin(handle, cursor)).To(Succeed())

			e, found, err := subject.CursorAdvance(handle, cursor)
			Expect(err).NotTo(HaveOccurred())
			Expect(found).To(BeTrue())
			Expect(e).To(Equal(sparse.Extent{10, 200, 5}))

			e, found, err = subject.CursorAdvance(handle, cursor)
			Expect(err).NotTo(HaveOccurred())
			Expect(found).To(BeTrue())
			Expect(e).To(Equal(sparse.Extent{0, 100, 5}))

			_, found, err = subject.CursorAdvance(handle, cursor)
			Expect(err).NotTo(HaveOccurred())
			Expect(found).To(BeFalse())

			_, found, err = subject.CursorAdvance(handle, cursor)
			Expect(err).NotTo(HaveOccurred())
			Expect(found).To(BeFalse())
		})

		It("should reject short storage", func() {
			Expect(subject.CursorBegin(handle, cursor[:sparse.CursorSize-1])).To(MatchError(sparse.ErrBadCursor))

			Expect(subject.CursorBegin(handle, cursor)).To(Succeed())
			_, _, err := subject.CursorAdvance(handle, cursor[:8])
			Expect(err).To(MatchError(sparse.ErrBadCursor))
		})

		It("should reject uninitialised storage", func() {
			_, _, err := subject.CursorAdvance(handle, cursor)
			Expect(err).To(MatchError(sparse.ErrBadCursor))
		})

		It("should reject cursors of other handles", func() {
			other := subject.Create()
			Expect(subject.CursorBegin(other, cursor)).To(Succeed())

			_, _, err := subject.CursorAdvance(handle, cursor)
			Expect(err).To(MatchError(sparse.ErrBadCursor))

			_, found, err := subject.CursorAdvance(other, cursor)
			Expect(err).NotTo(HaveOccurred())
			Expect(found).To(BeFalse())
		})

		It("should reject cursors of destroyed handles", func() {
			Expect(subject.CursorBegin(handle, cursor)).To(Succeed())
			Expect(subject.Destroy(handle)).To(Succeed())

			_, _, err := subject.CursorAdvance(handle, cursor)
			Expect(err).To(MatchError(sparse.ErrBadHandle))
		})
	})
})
