/*
Package sparse contains a sparse extent index: an ordered table recording
which byte ranges of a logical address space are backed by a physical
allocation, and where.

Index

An Index holds non-overlapping extents keyed by their logical start.

	Extent:
	+-----------------------+------------------------+-----------------+
	| logical start (int64) | physical start (int64) | length (int64)  |
	+-----------------------+------------------------+-----------------+

Write clips, splits or removes every extent overlapping the new range and
merges the new extent into its left neighbour if both are contiguous in
logical and physical space. Read returns the physical offset backing a
logical offset, the contiguous run available from there and the distance
to the next known extent.

Snapshot

A snapshot contains a series of data blocks followed by an index and a
footer.

    Snapshot layout:
    +---------+---------+---------+-------------+-----------------+
    | block 1 |   ...   | block n | block index | snapshot footer |
    +---------+---------+---------+-------------+-----------------+

    Block index:
    +--------------------------+--------------------+----------------------------------+---------------------------+--------+
    | end of block 1 (varint)  | offset 1 (uvarint) | end of block 2 (uvarint,delta)   | offset 2 (uvarint,delta)  |   ...  |
    +--------------------------+--------------------+----------------------------------+---------------------------+--------+

    Snapshot footer:
    +------------------------+------------------+
    | index offset (8 bytes) |  magic (8 bytes) |
    +------------------------+------------------+

A block comprises of a series of sections, followed by a section
index and a single-byte compression type indicator.

    Block layout:
    +-----------+---------+-----------+---------------+---------------------------+
    | section 1 |   ...   | section n | section index | compression type (1-byte) |
    +-----------+---------+-----------+---------------+---------------------------+

    Section index:
    +----------------------------+-------+----------------------------+-------------------------------+
    | section offset 2 (4 bytes) |  ...  | section offset n (4 bytes) |  number of sections (4 bytes) |
    +----------------------------+-------+----------------------------+-------------------------------+

A section is a series of extents where the first one is stored in full
while subsequent ones are relative to the end of their predecessor.

    +------------------+-------------------+--------------------+-------------------------+----------------------------+--------------------+-------+
    | logical (varint) | physical (varint) | length 1 (uvarint) | gap (uvarint,delta)     | physical (varint,delta)    | length 2 (uvarint) |  ...  |
    +------------------+-------------------+--------------------+-------------------------+----------------------------+--------------------+-------+

File

A File is a sparse virtual file. OpenFile keeps it in two append-only
stores: the data store receives written payloads, the journal one record
per write (see Journal). Opening a File replays the journal into an Index.

OpenSingleFile keeps payloads and journal records in one data store. Each
write appends a self-describing entry:

    +------------------+---------+-----------------------+----------------------+-----------------+----------------+
    | length (uvarint) | payload | parent ptr (uvarint)  | record size (uvarint)| journal records | tail (4 bytes) |
    +------------------+---------+-----------------------+----------------------+-----------------+----------------+

The parent pointer is the distance back to the parent entry's parent
pointer, 0 when there is none, and the tail the distance from the entry's
own parent pointer to the tail. Entry k holds the journal records of
entries k-lowbit(k)+1 to k and its parent is entry k-lowbit(k), so the
journal is recovered by following at most log2(k) parent pointers back
from the last tail.
*/
package sparse
