package tools

import (
	"context"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"
	"github.com/eflow-agent/server/internal/everflow"
)

type UpdateConversionStatusInput struct {
	ConversionIDs []string `json:"conversion_ids"`
	Status        string   `json:"status"`
}

type UpdateConversionStatusOutput struct {
	Updated  int            `json:"updated"`
	Status   string         `json:"status"`
	Response map[string]any `json:"response,omitempty"`
}

func createUpdateConversionStatusTool(up Upstream) tool.BaseTool {
	return utils.NewTool(
		&schema.ToolInfo{
			Name: ToolUpdateConversionStatus,
			Desc: "Change the status of one or more conversions.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"conversion_ids": {
					Type:     schema.Array,
					ElemInfo: &schema.ParameterInfo{Type: schema.String},
					Desc:     "Conversion ids to update.",
					Required: true,
				},
				"status": {
					Type:     schema.String,
					Enum:     []string{everflow.StatusApproved, everflow.StatusRejected, everflow.StatusInvalid, everflow.StatusPending},
					Required: true,
				},
			}),
		},
		func(ctx context.Context, in *UpdateConversionStatusInput) (*UpdateConversionStatusOutput, error) {
			res, err := up.UpdateConversionStatus(ctx, in.ConversionIDs, in.Status)
			if err != nil {
				return nil, err
			}
			return &UpdateConversionStatusOutput{
				Updated:  len(in.ConversionIDs),
				Status:   in.Status,
				Response: res.Raw,
			}, nil
		},
	)
}
