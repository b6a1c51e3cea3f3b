package web

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/pkg/errors"

	"github.com/vadiminshakov/riskvault/internal/identity"
)

// SignatureHeader carries the hex personal-message signature of the raw request body.
const SignatureHeader = "X-Signature"

const maxBodyBytes = 1 << 16

// Envelope fields every signed body carries. Action binds the signature to one
// endpoint and Vault to one deployment.
type Envelope struct {
	Action   string `json:"action"`
	Vault    string `json:"vault"`
	Deadline int64  `json:"deadline"`
}

// authenticate verifies the signed body and returns the signer as the caller.
func (s *Server) authenticate(w http.ResponseWriter, r *http.Request, action string) (common.Address, []byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return common.Address{}, nil, errors.Wrap(errBadRequest, err.Error())
	}

	header := r.Header.Get(SignatureHeader)
	if header == "" {
		return common.Address{}, nil, errors.Wrapf(identity.ErrInvalidSignature, "missing %s header", SignatureHeader)
	}
	sig, err := hexutil.Decode(header)
	if err != nil {
		return common.Address{}, nil, errors.Wrap(identity.ErrInvalidSignature, "signature is not 0x-prefixed hex")
	}

	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return common.Address{}, nil, errors.Wrap(errBadRequest, "body is not a json object")
	}
	if env.Action != action {
		return common.Address{}, nil, errors.Wrapf(errBadRequest, "signed action %q, endpoint expects %q", env.Action, action)
	}

	if !common.IsHexAddress(env.Vault) || common.HexToAddress(env.Vault) != s.vault.Address() {
		return common.Address{}, nil, errors.Wrapf(errBadRequest, "signed for vault %q, this vault is %s",
			env.Vault, s.vault.Address().Hex())
	}

	caller, err := identity.Recover(body, sig)
	if err != nil {
		return common.Address{}, nil, err
	}
	if err := s.guard.Accept(caller, body, time.Unix(env.Deadline, 0)); err != nil {
		return common.Address{}, nil, err
	}
	return caller, body, nil
}

// SignBody marshals payload and signs it. The payload must carry the Envelope fields.
func SignBody(signer *identity.Signer, payload any) ([]byte, string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, "", errors.Wrap(err, "marshal payload")
	}
	sig, err := signer.Sign(body)
	if err != nil {
		return nil, "", err
	}
	return body, hexutil.Encode(sig), nil
}

func decodeBody(body []byte, dst any) error {
	if err := json.Unmarshal(body, dst); err != nil {
		return errors.Wrap(errBadRequest, err.Error())
	}
	return nil
}
