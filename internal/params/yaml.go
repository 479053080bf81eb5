package params

import (
	"bytes"
	"io"

	pkgerrors "github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

func encodeYAML(w io.Writer, p Parameters) error {
	if p.DistortionCoeffs == nil {
		p.DistortionCoeffs = []float64{}
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(p); err != nil {
		return pkgerrors.Wrap(err, "marshal parameters")
	}
	return enc.Close()
}

func decodeYAML(data []byte, name string) (Parameters, error) {
	var raw rawParameters
	dec := yaml.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&raw); err != nil {
		if err == io.EOF {
			return Parameters{}, &ParseError{Path: name, Err: pkgerrors.New("empty document")}
		}
		return Parameters{}, &ParseError{Path: name, Err: err}
	}
	return raw.resolve(name)
}
