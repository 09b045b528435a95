package qnet

import (
	"bufio"
	"compress/flate"
	"encoding/binary"
	"io"
	"math"
	"os"

	repeatq "github.com/NUS-IDS/ranlp21-fiqv"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Matrix is a dense row-major matrix of float32 values,
// used to store pretrained word vectors.
type Matrix struct {
	Rows int
	Cols int
	Data []float32
}

// WriteMatrix writes a matrix as a flate-compressed
// stream: two little-endian uint32 dimensions followed by
// the little-endian float32 components.
func WriteMatrix(w io.Writer, m *Matrix) error {
	if len(m.Data) != m.Rows*m.Cols {
		return repeatq.ShapeError("matrix data", m.Rows*m.Cols, len(m.Data))
	}
	fw, err := flate.NewWriter(w, flate.DefaultCompression)
	if err != nil {
		return err
	}
	header := []uint32{uint32(m.Rows), uint32(m.Cols)}
	if err := binary.Write(fw, binary.LittleEndian, header); err != nil {
		return errors.Wrap(err, "write matrix header")
	}
	encoded := make([]byte, len(m.Data)*4)
	for i, num := range m.Data {
		data := math.Float32bits(num)
		idx := i << 2
		encoded[idx] = byte(data)
		encoded[idx+1] = byte(data >> 8)
		encoded[idx+2] = byte(data >> 16)
		encoded[idx+3] = byte(data >> 24)
	}
	if _, err := fw.Write(encoded); err != nil {
		return errors.Wrap(err, "write matrix data")
	}
	return fw.Close()
}

// ReadMatrix reads a matrix written by WriteMatrix.
func ReadMatrix(r io.Reader) (*Matrix, error) {
	reader := flate.NewReader(r)
	defer reader.Close()

	var header [2]uint32
	if err := binary.Read(reader, binary.LittleEndian, header[:]); err != nil {
		return nil, errors.Wrap(err, "read matrix header")
	}
	m := &Matrix{Rows: int(header[0]), Cols: int(header[1])}
	origBytes := make([]byte, m.Rows*m.Cols*4)
	if _, err := io.ReadFull(reader, origBytes); err != nil {
		return nil, errors.Wrap(err, "read matrix data")
	}
	m.Data = make([]float32, m.Rows*m.Cols)
	for i := 0; i+4 <= len(origBytes); i += 4 {
		m.Data[i>>2] = math.Float32frombits(uint32(origBytes[i]) |
			(uint32(origBytes[i+1]) << 8) |
			(uint32(origBytes[i+2]) << 16) |
			(uint32(origBytes[i+3]) << 24))
	}
	return m, nil
}

// LoadWordVectors replaces the word embedding table with
// pretrained vectors stored in a WriteMatrix file.
// The matrix must have one row per vocabulary word.
func (m *Model) LoadWordVectors(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "load word vectors")
	}
	defer f.Close()
	mat, err := ReadMatrix(bufio.NewReader(f))
	if err != nil {
		return errors.WithMessagef(err, "load word vectors %s", path)
	}
	if mat.Rows != m.Words.OutCount {
		return errors.WithMessage(repeatq.ShapeError("word vector rows",
			m.Words.OutCount, mat.Rows), path)
	}
	if mat.Cols != m.Words.InCount {
		return errors.WithMessage(repeatq.ShapeError("word vector columns",
			m.Words.InCount, mat.Cols), path)
	}
	data := make([]float64, len(mat.Data))
	for i, x := range mat.Data {
		data[i] = float64(x)
	}
	c := m.creator()
	m.Words.Weights.Vector.SetData(c.MakeNumericList(data))
	klog.Infof("Loaded %dx%d word vectors from %s.", mat.Rows, mat.Cols, path)
	return nil
}
