package domain

import (
	"strings"

	ierr "github.com/smallbiznis/fedbill/internal/errors"
)

type OperationType string

const (
	OperationCreate    OperationType = "create"
	OperationGet       OperationType = "get"
	OperationGetAll    OperationType = "getAll"
	OperationDelete    OperationType = "delete"
	OperationPause     OperationType = "pause"
	OperationHibernate OperationType = "hibernate"
	OperationStop      OperationType = "stop"
	OperationResume    OperationType = "resume"
)

var operationTypes = []OperationType{
	OperationCreate, OperationGet, OperationGetAll, OperationDelete,
	OperationPause, OperationHibernate, OperationStop, OperationResume,
}

func ParseOperationType(s string) (OperationType, error) {
	for _, t := range operationTypes {
		if strings.EqualFold(string(t), strings.TrimSpace(s)) {
			return t, nil
		}
	}
	return "", ierr.NewErrorf("unknown operation type %q", s).Mark(ierr.ErrValidation)
}

// Operation is an action a tenant attempts on a resource.
type Operation struct {
	Type         OperationType `json:"type"`
	ResourceType string        `json:"resourceType"`
}

func (o Operation) IsCreation() bool {
	return o.Type == OperationCreate
}
