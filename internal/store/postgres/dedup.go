package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/ihmeuw-scicomp/jobmon-sub003/internal/jobmonerrors"
	"github.com/ihmeuw-scicomp/jobmon-sub003/internal/model"
)

// BindTool is an idempotent lookup/insert, race-safe under a unique-key
// collision on name (spec.md §4.2: "Idempotent lookup/insert; race-safe
// under unique-key collision").
func (s *Store) BindTool(ctx context.Context, name string) (model.Tool, error) {
	var t model.Tool
	err := s.WithTx(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			INSERT INTO tool (name) VALUES ($1)
			ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
			RETURNING id, name`, name)
		return row.Scan(&t.ID, &t.Name)
	})
	if err != nil {
		return model.Tool{}, jobmonerrors.Wrap(err, "bind tool")
	}
	return t, nil
}

func (s *Store) BindToolVersion(ctx context.Context, toolID int64) (model.ToolVersion, error) {
	var tv model.ToolVersion
	err := s.WithTx(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			INSERT INTO tool_version (tool_id) VALUES ($1)
			RETURNING id, tool_id`, toolID)
		return row.Scan(&tv.ID, &tv.ToolID)
	})
	if err != nil {
		return model.ToolVersion{}, jobmonerrors.Wrap(err, "bind tool version")
	}
	return tv, nil
}

func (s *Store) BindTaskTemplate(ctx context.Context, toolID int64, name string) (model.TaskTemplate, error) {
	var tt model.TaskTemplate
	err := s.WithTx(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			INSERT INTO task_template (tool_id, name) VALUES ($1, $2)
			ON CONFLICT (tool_id, name) DO UPDATE SET name = EXCLUDED.name
			RETURNING id, tool_id, name`, toolID, name)
		return row.Scan(&tt.ID, &tt.ToolID, &tt.Name)
	})
	if err != nil {
		return model.TaskTemplate{}, jobmonerrors.Wrap(err, "bind task template")
	}
	return tt, nil
}

// BindTaskTemplateVersion is content-addressed and deduplicated on
// (template_id, command_template, arg_mapping_hash) (spec.md §3).
func (s *Store) BindTaskTemplateVersion(ctx context.Context, ttv model.TaskTemplateVersion) (model.TaskTemplateVersion, error) {
	out := ttv
	err := s.WithTx(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			INSERT INTO task_template_version (template_id, command_template, arg_mapping_hash)
			VALUES ($1, $2, $3)
			ON CONFLICT (template_id, command_template, arg_mapping_hash)
				DO UPDATE SET command_template = EXCLUDED.command_template
			RETURNING id`, ttv.TemplateID, ttv.CommandTemplate, ttv.ArgMappingHash)
		return row.Scan(&out.ID)
	})
	if err != nil {
		return model.TaskTemplateVersion{}, jobmonerrors.Wrap(err, "bind task template version")
	}
	return out, nil
}

// AddNodes bulk-inserts (template_version_id, node_args_hash) pairs with a
// dialect "ignore duplicate" upsert, then a follow-up select recovers ids
// for rows that already existed (spec.md §4.2).
func (s *Store) AddNodes(ctx context.Context, nodes []model.Node) ([]model.Node, error) {
	out := make([]model.Node, len(nodes))
	err := s.WithTx(ctx, func(tx pgx.Tx) error {
		for i, n := range nodes {
			row := tx.QueryRow(ctx, `
				INSERT INTO node (template_version_id, node_args_hash)
				VALUES ($1, $2)
				ON CONFLICT (template_version_id, node_args_hash)
					DO UPDATE SET node_args_hash = EXCLUDED.node_args_hash
				RETURNING id, template_version_id, node_args_hash`,
				n.TemplateVersionID, n.NodeArgsHash)
			if err := row.Scan(&out[i].ID, &out[i].TemplateVersionID, &out[i].NodeArgsHash); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, jobmonerrors.Wrap(err, "add nodes")
	}
	return out, nil
}

func (s *Store) AddDag(ctx context.Context, dagHash string) (model.Dag, error) {
	var d model.Dag
	err := s.WithTx(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			INSERT INTO dag (dag_hash) VALUES ($1)
			ON CONFLICT (dag_hash) DO UPDATE SET dag_hash = EXCLUDED.dag_hash
			RETURNING id, dag_hash, created_date`, dagHash)
		return row.Scan(&d.ID, &d.DagHash, &d.CreatedDate)
	})
	if err != nil {
		return model.Dag{}, jobmonerrors.Wrap(err, "add dag")
	}
	return d, nil
}

func (s *Store) AddEdges(ctx context.Context, dagID int64, edges []model.Edge) error {
	return s.WithTx(ctx, func(tx pgx.Tx) error {
		for _, e := range edges {
			_, err := tx.Exec(ctx, `
				INSERT INTO edge (dag_id, node_id, upstream_node_ids, downstream_node_ids)
				VALUES ($1, $2, $3, $4)
				ON CONFLICT (dag_id, node_id) DO UPDATE
					SET upstream_node_ids = EXCLUDED.upstream_node_ids,
						downstream_node_ids = EXCLUDED.downstream_node_ids`,
				dagID, e.NodeID, e.UpstreamNodeIDs, e.DownstreamNodeIDs)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// MarkDagComplete stamps created_date once the client signals the dag is
// fully assembled (spec.md §4.2).
func (s *Store) MarkDagComplete(ctx context.Context, dagID int64) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE dag SET created_date = now() WHERE id = $1 AND created_date IS NULL`, dagID)
	if err != nil {
		return jobmonerrors.Wrap(err, "mark dag complete")
	}
	return nil
}
