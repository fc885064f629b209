package sparse_test

import (
	"bytes"
	"encoding/binary"
	"math"
	"math/rand"

	"github.com/bsm/sparse"
	"github.com/golang/snappy"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("Reader", func() {
	var subject *sparse.Reader

	// The following will seed 100 extents, the i-th one covering
	// logical [i*8, i*8+4), across multiple blocks.
	BeforeEach(func() {
		var err error
		subject, err = seedSnapshot(100, &sparse.WriterOptions{
			BlockSize:            128,
			BlockRestartInterval: 8,
			Compression:          sparse.NoCompression,
		})
		Expect(err).NotTo(HaveOccurred())
	})

	// seek returns the logical start of the first extent after Seek(off), or -1.
	seek := func(off int64) int64 {
		iter, err := subject.Seek(off)
		Expect(err).NotTo(HaveOccurred())
		defer iter.Release()

		if !iter.Next() {
			Expect(iter.Err()).NotTo(HaveOccurred())
			return -1
		}
		return iter.Extent().Logical
	}

	// load reads all extents of a raw snapshot.
	load := func(raw []byte) ([]sparse.Extent, error) {
		r, err := sparse.NewReader(bytes.NewReader(raw), int64(len(raw)))
		Expect(err).NotTo(HaveOccurred())

		x, err := r.Load()
		if err != nil {
			return nil, err
		}
		return x.Extents(), nil
	}

	It("should init", func() {
		Expect(subject.NumBlocks()).To(BeNumerically(">", 1))

		empty, err := seedSnapshot(0, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(empty.NumBlocks()).To(Equal(0))

		iter, err := empty.Seek(0)
		Expect(err).NotTo(HaveOccurred())
		Expect(iter.More()).To(BeFalse())
		Expect(iter.Next()).To(BeFalse())
		Expect(iter.Err()).NotTo(HaveOccurred())
	})

	It("should reject bad input", func() {
		_, err := sparse.NewReader(bytes.NewReader([]byte("short")), 5)
		Expect(err).To(MatchError(`sparse: bad magic byte sequence`))

		junk := bytes.Repeat([]byte{1}, 64)
		_, err = sparse.NewReader(bytes.NewReader(junk), int64(len(junk)))
		Expect(err).To(MatchError(`sparse: bad magic byte sequence`))

		// a snappy block decoding to 2 bytes, block index and footer
		raw := append(snappy.Encode(nil, []byte{1, 2}), 1)
		indexOffset := len(raw)
		raw = append(raw, 20, 0)
		raw = binary.LittleEndian.AppendUint64(raw, uint64(indexOffset))
		raw = append(raw, "SPRSext\x01"...)
		Expect(load(raw)).Error().To(MatchError(`sparse: block 0 has a bad section count`))
	})

	It("should reject corrupt section indexes", func() {
		// two extents, one section each, no compression
		seed := func() (raw []byte, trailer int) {
			buf := new(bytes.Buffer)
			w := sparse.NewWriter(buf, &sparse.WriterOptions{
				BlockRestartInterval: 1,
				Compression:          sparse.NoCompression,
			})
			Expect(w.Append(sparse.Extent{0, 0, 4})).To(Succeed())
			Expect(w.Append(sparse.Extent{8, 4, 4})).To(Succeed())
			Expect(w.Close()).To(Succeed())

			raw = buf.Bytes()
			blockEnd := int(binary.LittleEndian.Uint64(raw[len(raw)-16:]))
			return raw, blockEnd - 9 // section offset 2, section count, compression byte
		}

		raw, trailer := seed()
		Expect(load(raw)).To(HaveLen(2))

		raw, trailer = seed()
		binary.LittleEndian.PutUint32(raw[trailer:], 0xffff)
		Expect(load(raw)).Error().To(MatchError(`sparse: block 0 has bad section offsets`))

		raw, trailer = seed()
		binary.LittleEndian.PutUint32(raw[trailer:], 0)
		Expect(load(raw)).Error().To(MatchError(`sparse: block 0 has bad section offsets`))

		raw, trailer = seed()
		binary.LittleEndian.PutUint32(raw[trailer+4:], 1000)
		Expect(load(raw)).Error().To(MatchError(`sparse: block 0 has a bad section count`))

		raw, trailer = seed()
		binary.LittleEndian.PutUint32(raw[trailer+4:], 0)
		Expect(load(raw)).Error().To(MatchError(`sparse: block 0 has a bad section count`))
	})

	It("should retrieve blocks", func() {
		b0, err := subject.GetBlock(0)
		Expect(err).NotTo(HaveOccurred())
		Expect(b0.Pos()).To(Equal(0))
		Expect(b0.NumSections()).To(BeNumerically(">", 0))

		b0, err = subject.GetBlock(-1)
		Expect(err).NotTo(HaveOccurred())
		Expect(b0.Pos()).To(Equal(0))

		bn, err := subject.GetBlock(1000)
		Expect(err).NotTo(HaveOccurred())
		Expect(bn.Pos()).To(Equal(subject.NumBlocks()))
	})

	It("should seek", func() {
		Expect(seek(math.MinInt64)).To(Equal(int64(0)))
		Expect(seek(-100)).To(Equal(int64(0)))
		Expect(seek(0)).To(Equal(int64(0)))
		Expect(seek(3)).To(Equal(int64(0)))
		Expect(seek(4)).To(Equal(int64(8)))
		Expect(seek(8)).To(Equal(int64(8)))
		Expect(seek(795)).To(Equal(int64(792)))
		Expect(seek(796)).To(Equal(int64(-1)))
		Expect(seek(1000)).To(Equal(int64(-1)))

		for off := int64(0); off < 800; off++ {
			want := int64(-1)
			for i := 0; i < 100; i++ {
				if e := seedExtent(i); e.End() > off {
					want = e.Logical
					break
				}
			}
			Expect(seek(off)).To(Equal(want), "for %d", off)
		}
	})

	It("should iterate", func() {
		iter, err := subject.Seek(math.MinInt64)
		Expect(err).NotTo(HaveOccurred())
		defer iter.Release()

		for i := 0; i < 100; i++ {
			Expect(iter.More()).To(BeTrue(), "at %d", i)
			Expect(iter.Next()).To(BeTrue(), "at %d", i)
			Expect(iter.Extent()).To(Equal(seedExtent(i)))
		}
		Expect(iter.More()).To(BeFalse())
		Expect(iter.Next()).To(BeFalse())
		Expect(iter.Err()).NotTo(HaveOccurred())
	})

	It("should iterate compressed snapshots", func() {
		r, err := seedSnapshot(10000, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(r.NumBlocks()).To(BeNumerically(">", 1))

		iter, err := r.Seek(40000)
		Expect(err).NotTo(HaveOccurred())
		defer iter.Release()

		for i := 5000; i < 10000; i++ {
			Expect(iter.Next()).To(BeTrue(), "at %d", i)
			Expect(iter.Extent()).To(Equal(seedExtent(i)))
		}
		Expect(iter.Next()).To(BeFalse())
		Expect(iter.Err()).NotTo(HaveOccurred())
	})

	It("should load", func() {
		x, err := subject.Load()
		Expect(err).NotTo(HaveOccurred())
		Expect(x.Len()).To(Equal(100))
		Expect(x.Extents()[99]).To(Equal(seedExtent(99)))

		physical, sliceLength, gap := x.Read(10)
		Expect(physical).To(Equal(seedExtent(1).Physical + 2))
		Expect(sliceLength).To(Equal(int64(2)))
		Expect(gap).To(Equal(int64(4)))
	})

	It("should load extents as stored", func() {
		// a contiguous right neighbour is never merged on write
		x := seedIndex(sparse.Extent{10, 110, 5}, sparse.Extent{5, 105, 5})
		Expect(x.Extents()).To(HaveLen(2))

		buf := new(bytes.Buffer)
		Expect(x.WriteSnapshot(buf, nil)).To(Succeed())
		Expect(load(buf.Bytes())).To(Equal(x.Extents()))
	})

	Describe("BlockReader", func() {
		var block *sparse.BlockReader

		BeforeEach(func() {
			var err error
			block, err = subject.GetBlock(0)
			Expect(err).NotTo(HaveOccurred())
		})

		It("should have sections", func() {
			n := block.NumSections()
			Expect(n).To(BeNumerically(">", 1))
			Expect(block.GetSection(0).Pos()).To(Equal(0))
			Expect(block.GetSection(1).Pos()).To(Equal(1))
			Expect(block.GetSection(n).Pos()).To(Equal(n))
			Expect(block.GetSection(n + 1).Pos()).To(Equal(n))
			Expect(block.GetSection(-1).Pos()).To(Equal(0))
		})

		It("should seek sections", func() {
			// 8 extents per section, 64 logical bytes each
			Expect(block.SeekSection(-1).Pos()).To(Equal(0))
			Expect(block.SeekSection(0).Pos()).To(Equal(0))
			Expect(block.SeekSection(63).Pos()).To(Equal(0))
			Expect(block.SeekSection(64).Pos()).To(Equal(1))
			Expect(block.SeekSection(1 << 40).Pos()).To(Equal(block.NumSections()))
		})
	})

	Describe("SectionReader", func() {
		var section *sparse.SectionReader

		// S1: extents 8..15
		BeforeEach(func() {
			block, err := subject.GetBlock(0)
			Expect(err).NotTo(HaveOccurred())

			section = block.GetSection(1)
		})

		It("should seek", func() {
			Expect(section.Seek(66)).To(BeTrue())
			Expect(section.Next()).To(BeTrue())
			Expect(section.Extent()).To(Equal(seedExtent(8)))

			Expect(section.Seek(101)).To(BeTrue())
			Expect(section.Next()).To(BeTrue())
			Expect(section.Extent()).To(Equal(seedExtent(13)))

			Expect(section.Seek(1000)).To(BeFalse())
			Expect(section.More()).To(BeFalse())
		})

		It("should iterate", func() {
			for i := 8; i < 16; i++ {
				Expect(section.More()).To(BeTrue())
				Expect(section.Next()).To(BeTrue())
				Expect(section.Extent()).To(Equal(seedExtent(i)))
			}
			Expect(section.More()).To(BeFalse())
			Expect(section.Next()).To(BeFalse())
			Expect(section.Err()).NotTo(HaveOccurred())
		})
	})

	It("should round-trip indexes", func() {
		const space = 512
		rnd := rand.New(rand.NewSource(3))

		x := sparse.New()
		for _, w := range randomWrites(rnd, 200, space) {
			Expect(x.Write(w.Logical, w.Physical, w.Length)).To(Succeed())
		}

		buf := new(bytes.Buffer)
		Expect(x.WriteSnapshot(buf, &sparse.WriterOptions{BlockSize: 64})).To(Succeed())

		r, err := sparse.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
		Expect(err).NotTo(HaveOccurred())

		y, err := r.Load()
		Expect(err).NotTo(HaveOccurred())
		Expect(y.Validate()).To(Succeed())
		Expect(y.Extents()).To(Equal(x.Extents()))

		for p := int64(0); p < space; p++ {
			px, sx, _ := x.Read(p)
			py, sy, _ := y.Read(p)
			Expect(sy == 0).To(Equal(sx == 0), "at %d", p)
			if sx != 0 {
				Expect(py).To(Equal(px), "at %d", p)
			}
		}
	})
})
