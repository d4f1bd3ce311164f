package warehouse

import "github.com/go-faster/errors"

var (
	// ErrHospitalNotFound means no hospital row matches the file name.
	ErrHospitalNotFound = errors.New("hospital not found")

	// ErrAlreadyLoaded means the hospital already has price rows.
	ErrAlreadyLoaded = errors.New("hospital already loaded")

	// ErrTransaction marks a database failure that rolled back the load.
	ErrTransaction = errors.New("load transaction failed")
)

type txError struct {
	op  string
	err error
}

func (e *txError) Error() string        { return ErrTransaction.Error() + ": " + e.op + ": " + e.err.Error() }
func (e *txError) Unwrap() error        { return e.err }
func (e *txError) Is(target error) bool { return target == ErrTransaction }

func txFailed(op string, err error) error {
	if err == nil {
		return nil
	}
	return &txError{op: op, err: err}
}
