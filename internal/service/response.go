// Copyright (c) Bas van Beek 2022.
// Copyright (c) Tetrate, Inc 2021.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package service

import (
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/basvanbeek/span-pipeline/pkg/observability"
)

type response struct {
	Service string      `json:"service"`
	TraceID string      `json:"traceID"`
	Code    int         `json:"code"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
}

// envelope is used to decode upstream responses.
type envelope struct {
	Service string          `json:"service"`
	TraceID string          `json:"traceID"`
	Code    int             `json:"code"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

func (ep *Endpoints) writeData(ctx context.Context, w http.ResponseWriter, data interface{}) {
	ep.writeResponse(ctx, w, response{Code: http.StatusOK, Data: data})
}

func (ep *Endpoints) writeMessage(ctx context.Context, w http.ResponseWriter, msg string) {
	ep.writeResponse(ctx, w, response{Code: http.StatusOK, Message: msg})
}

// writeError reports err to the caller and on the request span.
func (ep *Endpoints) writeError(ctx context.Context, w http.ResponseWriter, code int, err error) {
	span := ep.Instrumenter.SpanFromContext(ctx)
	span.Tag(observability.ErrorKindTag, http.StatusText(code))
	span.Tag(observability.ErrorMsgTag, err.Error())
	ep.logger.Warn("request failed",
		zap.String("trace_id", span.TraceID()),
		zap.Int("code", code),
		zap.Error(err))

	ep.writeResponse(ctx, w, response{Code: code, Message: err.Error()})
}

func (ep *Endpoints) writeResponse(ctx context.Context, w http.ResponseWriter, res response) {
	res.Service = ep.ServiceName
	res.TraceID = ep.Instrumenter.SpanFromContext(ctx).TraceID()
	w.Header().Set("Content-Type", "application/json")
	if res.Code > 0 {
		w.WriteHeader(res.Code)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		ep.logger.Error("error while writing http response", zap.Error(err))
	}
}
